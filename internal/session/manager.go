package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/services"
	"github.com/Gopher0727/SecretSanta/internal/utils"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

var (
	cancelWords = []string{"/cancel", "cancel", "отмена"}
	yesWords    = []string{"yes", "y", "да", "д"}
	noWords     = []string{"no", "n", "нет", "н"}
	skipWords   = []string{"skip", "пропустить", "-"}
	allWords    = []string{"all", "все"}
)

const (
	cancelledText      = "Cancelled."
	nothingToCancel    = "There is nothing to cancel."
	noLeaveCandidates  = "You have no groups you can leave."
	noNameCandidates   = "You have no groups where the name can still be changed."
	noGiftCandidates   = "You have no groups where a gift can be sent right now."
	noDeleteCandidates = "You have no closed groups to delete."
	textOnlyText       = "Please send text."
)

// Input is one user message routed into a flow. For media, Text is empty and
// Caption holds the optional caption.
type Input struct {
	Text     string
	MediaRef string
	Caption  string
}

// Manager drives the per-user dialogs. Callers must serialize calls for one
// user; the Manager itself only guards the store.
type Manager struct {
	store  Store
	groups *services.GroupService
	gifts  *services.GiftService
	logger *logger.Logger
}

func NewManager(store Store, groups *services.GroupService, gifts *services.GiftService, log *logger.Logger) *Manager {
	return &Manager{
		store:  store,
		groups: groups,
		gifts:  gifts,
		logger: log.Named("session"),
	}
}

func matches(text string, words []string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, w := range words {
		if text == w {
			return true
		}
	}
	return false
}

// IsCancel reports whether text asks to abandon the current flow.
func IsCancel(text string) bool {
	return matches(text, cancelWords)
}

// Abort drops the user's flow, if any, after one of their commands failed
// on a state or ownership check.
func (m *Manager) Abort(ctx context.Context, userID string) {
	st, err := m.store.Get(ctx, userID)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load flow", logger.UserID(userID), zap.Error(err))
		return
	}
	if st == nil {
		return
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		m.logger.WarnContext(ctx, "failed to drop flow", logger.UserID(userID), zap.Error(err))
		return
	}
	m.logger.InfoContext(ctx, "flow aborted", logger.UserID(userID), zap.String("state", Kind(st)))
}

func (m *Manager) Cancel(ctx context.Context, user *models.User) []string {
	st, err := m.store.Get(ctx, user.ExternalID)
	if err != nil {
		return m.fail(ctx, user, err)
	}
	if err := m.store.Delete(ctx, user.ExternalID); err != nil {
		return m.fail(ctx, user, err)
	}
	if st == nil {
		return []string{nothingToCancel}
	}
	m.logger.InfoContext(ctx, "flow cancelled", logger.UserID(user.ExternalID), zap.String("state", Kind(st)))
	return []string{cancelledText}
}

// Handle feeds in to the user's active flow. handled is false when the user
// has no flow, in which case nothing was changed.
func (m *Manager) Handle(ctx context.Context, user *models.User, in Input) (handled bool, replies []string) {
	st, err := m.store.Get(ctx, user.ExternalID)
	if err != nil {
		return true, m.fail(ctx, user, err)
	}
	if st == nil {
		return false, nil
	}
	if IsCancel(in.Text) {
		return true, m.Cancel(ctx, user)
	}

	next, replies, err := m.step(ctx, user, st, in)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			// Same step again; Put restarts the TTL.
			if perr := m.store.Put(ctx, user.ExternalID, st); perr != nil {
				return true, m.fail(ctx, user, perr)
			}
			return true, []string{services.UserMessage(err), prompt(st)}
		}
		return true, m.fail(ctx, user, err)
	}
	return true, m.advance(ctx, user, next, replies)
}

// advance stores next and appends its prompt, or ends the flow when next is
// nil.
func (m *Manager) advance(ctx context.Context, user *models.User, next State, replies []string) []string {
	if next == nil {
		if err := m.store.Delete(ctx, user.ExternalID); err != nil {
			m.logger.WarnContext(ctx, "failed to clear session", logger.UserID(user.ExternalID), zap.Error(err))
		}
		return replies
	}
	if err := m.store.Put(ctx, user.ExternalID, next); err != nil {
		return m.fail(ctx, user, err)
	}
	return append(replies, prompt(next))
}

// fail ends the flow and turns err into a reply.
func (m *Manager) fail(ctx context.Context, user *models.User, err error) []string {
	if derr := m.store.Delete(ctx, user.ExternalID); derr != nil {
		m.logger.WarnContext(ctx, "failed to clear session", logger.UserID(user.ExternalID), zap.Error(derr))
	}
	if !errors.Is(err, services.ErrStateConflict) && !errors.Is(err, services.ErrNotFound) {
		m.logger.ErrorContext(ctx, "flow failed", logger.UserID(user.ExternalID), zap.Error(err))
	}
	return []string{services.UserMessage(err)}
}

func (m *Manager) start(ctx context.Context, user *models.User, st State) []string {
	m.logger.InfoContext(ctx, "flow started", logger.UserID(user.ExternalID), zap.String("state", Kind(st)))
	return m.advance(ctx, user, st, nil)
}

func (m *Manager) StartCreateGroup(ctx context.Context, user *models.User) []string {
	if err := m.groups.CheckCanCreate(ctx, user.ID); err != nil {
		return m.fail(ctx, user, err)
	}
	return m.start(ctx, user, CreateName{})
}

func (m *Manager) StartJoinGroup(ctx context.Context, user *models.User) []string {
	return m.start(ctx, user, JoinCode{})
}

func (m *Manager) StartLeaveGroup(ctx context.Context, user *models.User) []string {
	ps, err := m.groups.LeaveCandidates(ctx, user.ID)
	if err != nil {
		return m.fail(ctx, user, err)
	}
	switch len(ps) {
	case 0:
		return m.advance(ctx, user, nil, []string{noLeaveCandidates})
	case 1:
		replies, err := m.leave(ctx, user, ps[0].GroupID)
		if err != nil {
			return m.fail(ctx, user, err)
		}
		return m.advance(ctx, user, nil, replies)
	}
	return m.start(ctx, user, LeaveSelect{Candidates: participantCandidates(ps)})
}

func (m *Manager) StartSetName(ctx context.Context, user *models.User) []string {
	ps, err := m.groups.NameCandidates(ctx, user.ID)
	if err != nil {
		return m.fail(ctx, user, err)
	}
	switch len(ps) {
	case 0:
		return m.advance(ctx, user, nil, []string{noNameCandidates})
	case 1:
		return m.start(ctx, user, NameInput{GroupID: ps[0].GroupID, GroupName: ps[0].Group.Name})
	}
	return m.start(ctx, user, NameSelect{Candidates: participantCandidates(ps)})
}

func (m *Manager) StartSendGift(ctx context.Context, user *models.User) []string {
	ps, err := m.gifts.Candidates(ctx, user.ID)
	if err != nil {
		return m.fail(ctx, user, err)
	}
	switch len(ps) {
	case 0:
		return m.advance(ctx, user, nil, []string{noGiftCandidates})
	case 1:
		return m.start(ctx, user, GiftPayload{GroupID: ps[0].GroupID, GroupName: ps[0].Group.Name})
	}
	return m.start(ctx, user, GiftSelect{Candidates: participantCandidates(ps)})
}

func (m *Manager) StartCloseGroup(ctx context.Context, user *models.User) []string {
	g, err := m.groups.OwnedGroup(ctx, user.ID, models.OpenStatuses...)
	if err != nil {
		return m.fail(ctx, user, err)
	}
	return m.start(ctx, user, CloseMessage{GroupID: g.ID, GroupName: g.Name})
}

func (m *Manager) StartDeleteGroup(ctx context.Context, user *models.User) []string {
	closed, err := m.groups.DeleteCandidates(ctx, user.ID)
	if err != nil {
		return m.fail(ctx, user, err)
	}
	if len(closed) == 0 {
		return m.advance(ctx, user, nil, []string{noDeleteCandidates})
	}
	cs := make([]Candidate, len(closed))
	for i, c := range closed {
		label := groupLabel(&c.Group)
		if c.IsOwner {
			label += ", owner"
		}
		cs[i] = Candidate{GroupID: c.Group.ID, Label: label}
	}
	return m.start(ctx, user, DeleteSelect{Candidates: cs})
}

// step applies in to st. A nil next state ends the flow.
func (m *Manager) step(ctx context.Context, user *models.User, st State, in Input) (State, []string, error) {
	text := strings.TrimSpace(in.Text)
	// Only the gift step accepts media; elsewhere a photo is not an answer.
	if _, gift := st.(GiftPayload); in.MediaRef != "" && !gift {
		return nil, nil, invalid("input", textOnlyText)
	}

	switch st := st.(type) {
	case CreateName:
		name, err := services.ValidateGroupName(text)
		if err != nil {
			return nil, nil, err
		}
		return CreateDescription{Name: name}, nil, nil

	case CreateDescription:
		desc := text
		if matches(text, skipWords) {
			desc = ""
		}
		desc, err := services.ValidateDescription(desc)
		if err != nil {
			return nil, nil, err
		}
		return CreateGiftViaBot{Name: st.Name, Description: desc}, nil, nil

	case CreateGiftViaBot:
		var viaBot bool
		switch {
		case matches(text, yesWords):
			viaBot = true
		case matches(text, noWords):
		default:
			return nil, nil, invalid("gift_via_bot", "please answer yes or no")
		}
		return CreateDrawDate{Name: st.Name, Description: st.Description, GiftViaBot: viaBot}, nil, nil

	case CreateDrawDate:
		d, err := parseDate("draw_date", text)
		if err != nil {
			return nil, nil, err
		}
		return CreateDistributionDate{
			Name:        st.Name,
			Description: st.Description,
			GiftViaBot:  st.GiftViaBot,
			DrawDate:    d,
		}, nil, nil

	case CreateDistributionDate:
		d, err := parseDate("distribution_date", text)
		if err != nil {
			return nil, nil, err
		}
		if err := services.ValidateDates(&st.DrawDate, &d, nil); err != nil {
			return nil, nil, err
		}
		return CreateCloseDate{
			Name:             st.Name,
			Description:      st.Description,
			GiftViaBot:       st.GiftViaBot,
			DrawDate:         st.DrawDate,
			DistributionDate: d,
		}, nil, nil

	case CreateCloseDate:
		req := &services.CreateGroupRequest{
			Name:             st.Name,
			Description:      st.Description,
			GiftViaBot:       st.GiftViaBot,
			DrawDate:         &st.DrawDate,
			DistributionDate: &st.DistributionDate,
		}
		if !matches(text, skipWords) {
			d, err := parseDate("close_date", text)
			if err != nil {
				return nil, nil, err
			}
			req.CloseDate = &d
		}
		g, err := m.groups.CreateGroup(ctx, user.ID, req)
		if err != nil {
			return nil, nil, err
		}
		return nil, []string{createdText(g), services.NewInvite(g).Render()}, nil

	case JoinCode:
		code, ok := services.ParseInviteCode(in.Text)
		if !ok {
			code = text
		}
		res, err := m.groups.JoinGroup(ctx, user.ID, code)
		if err != nil {
			return nil, nil, err
		}
		return nil, []string{joinedText(res)}, nil

	case LeaveSelect:
		c, err := pick(st.Candidates, text)
		if err != nil {
			return nil, nil, err
		}
		replies, err := m.leave(ctx, user, c.GroupID)
		return nil, replies, err

	case NameSelect:
		c, err := pick(st.Candidates, text)
		if err != nil {
			return nil, nil, err
		}
		return NameInput{GroupID: c.GroupID, GroupName: c.Label}, nil, nil

	case NameInput:
		g, err := m.groups.SetName(ctx, user.ID, st.GroupID, text)
		if err != nil {
			return nil, nil, err
		}
		name, _ := services.ValidateParticipantName(text)
		return nil, []string{fmt.Sprintf("Your name in group '%s' is now '%s'.", g.Name, name)}, nil

	case GiftSelect:
		c, err := pick(st.Candidates, text)
		if err != nil {
			return nil, nil, err
		}
		return GiftPayload{GroupID: c.GroupID, GroupName: c.Label}, nil, nil

	case GiftPayload:
		gift := services.GiftInput{Text: in.Text, MediaRef: in.MediaRef}
		if in.MediaRef != "" {
			gift.Text = in.Caption
		}
		p, err := m.gifts.SetGift(ctx, user.ID, st.GroupID, gift)
		if err != nil {
			return nil, nil, err
		}
		return nil, []string{fmt.Sprintf("Your gift for group '%s' is saved. Your receiver gets it at the distribution.", p.Group.Name)}, nil

	case CloseMessage:
		msg := text
		if matches(text, skipWords) {
			msg = ""
		}
		res, err := m.groups.ForceClose(ctx, user.ID, st.GroupID, msg)
		if err != nil {
			return nil, nil, err
		}
		return nil, []string{fmt.Sprintf("Group '%s' is closed. Farewell message %s.", res.Group.Name, res.Delivery.Summary())}, nil

	case DeleteSelect:
		if matches(text, allWords) {
			deleted, total, err := m.groups.DeleteAllClosed(ctx, user.ID)
			if err != nil {
				return nil, nil, err
			}
			return nil, []string{fmt.Sprintf("Deleted %d of %d closed groups.", deleted, total)}, nil
		}
		c, err := pick(st.Candidates, text)
		if err != nil {
			return nil, nil, err
		}
		res, err := m.groups.DeleteGroup(ctx, user.ID, c.GroupID)
		if err != nil {
			return nil, nil, err
		}
		if res.WholeGroup {
			return nil, []string{fmt.Sprintf("Group '%s' has been deleted.", res.GroupName)}, nil
		}
		return nil, []string{fmt.Sprintf("Group '%s' has been removed from your list.", res.GroupName)}, nil
	}
	return nil, nil, fmt.Errorf("unhandled session state %s", Kind(st))
}

func (m *Manager) leave(ctx context.Context, user *models.User, groupID uint) ([]string, error) {
	g, err := m.groups.LeaveGroup(ctx, user.ID, groupID)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("You have left group '%s'.", g.Name)}, nil
}

func invalid(field, msg string) error {
	return &services.ValidationError{Field: field, Message: msg}
}

func parseDate(field, text string) (time.Time, error) {
	d, err := utils.ParseDate(text)
	if err != nil {
		return time.Time{}, invalid(field, "invalid date, use DD.MM.YYYY, for example 25.12.2024")
	}
	return d, nil
}

// pick resolves a 1-based index against the snapshot.
func pick(cs []Candidate, text string) (Candidate, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(cs) {
		return Candidate{}, invalid("selection", fmt.Sprintf("send a number from 1 to %d", len(cs)))
	}
	return cs[n-1], nil
}

func groupLabel(g *models.Group) string {
	return fmt.Sprintf("%s (%s)", g.Name, g.Code)
}

func participantCandidates(ps []models.Participant) []Candidate {
	cs := make([]Candidate, len(ps))
	for i := range ps {
		cs[i] = Candidate{GroupID: ps[i].GroupID, Label: groupLabel(&ps[i].Group)}
	}
	return cs
}
