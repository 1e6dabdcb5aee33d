package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/services"
	"github.com/Gopher0727/SecretSanta/internal/session"
	"github.com/Gopher0727/SecretSanta/internal/utils"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

// Router turns inbound events into replies for the sender. Notifications for
// other users (assignments, gifts, closings) go out through the services'
// broadcaster, not through the returned replies.
type Router struct {
	identity *services.IdentityService
	groups   *services.GroupService
	sessions *session.Manager
	pool     *utils.KeyedPool
	logger   *logger.Logger
}

func NewRouter(
	identity *services.IdentityService,
	groups *services.GroupService,
	sessions *session.Manager,
	pool *utils.KeyedPool,
	log *logger.Logger,
) *Router {
	return &Router{
		identity: identity,
		groups:   groups,
		sessions: sessions,
		pool:     pool,
		logger:   log.Named("bot"),
	}
}

// Handle processes ev on the sender's lane, so events of one user never
// interleave.
func (r *Router) Handle(ctx context.Context, ev Event) ([]notify.Message, error) {
	if err := ev.Normalize(); err != nil {
		return nil, err
	}
	ctx = logger.EnsureTraceID(ctx)

	var out []notify.Message
	err := r.pool.Do(ctx, ev.UserID, func() {
		out = r.dispatch(ctx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process event: %w", err)
	}
	return out, nil
}

func (r *Router) dispatch(ctx context.Context, ev Event) []notify.Message {
	r.logger.DebugContext(ctx, "event received",
		logger.UserID(ev.UserID),
		zap.String("type", string(ev.Type)),
		zap.String("command", ev.Command),
	)

	user, err := r.identity.Upsert(ctx, ev.profile())
	if err != nil {
		return r.failed(ctx, ev.UserID, err)
	}

	switch ev.Type {
	case EventUserSeen:
		return nil
	case EventCommand:
		return r.command(ctx, user, ev)
	}
	return r.message(ctx, user, ev)
}

func (r *Router) command(ctx context.Context, user *models.User, ev Event) []notify.Message {
	arg := strings.TrimSpace(strings.Join(ev.Args, " "))

	switch ev.Command {
	case "start":
		return r.reply(user, fmt.Sprintf(welcomeText, user.DefaultDisplayName()), commandsText)
	case "help":
		return r.reply(user, helpText)
	case "cancel":
		return r.reply(user, r.sessions.Cancel(ctx, user)...)
	case "create_group":
		return r.reply(user, r.sessions.StartCreateGroup(ctx, user)...)
	case "join_group":
		if arg != "" {
			return r.join(ctx, user, arg)
		}
		return r.reply(user, r.sessions.StartJoinGroup(ctx, user)...)
	case "leave_group":
		if arg != "" {
			g, err := r.groups.LeaveGroupByCode(ctx, user.ID, arg)
			if err != nil {
				return r.failed(ctx, user.ExternalID, err)
			}
			return r.reply(user, fmt.Sprintf("You have left group '%s'.", g.Name))
		}
		return r.reply(user, r.sessions.StartLeaveGroup(ctx, user)...)
	case "my_groups":
		return r.myGroups(ctx, user)
	case "set_name":
		return r.reply(user, r.sessions.StartSetName(ctx, user)...)
	case "draw":
		return r.draw(ctx, user)
	case "send_gift":
		return r.reply(user, r.sessions.StartSendGift(ctx, user)...)
	case "distribute_gifts":
		return r.distribute(ctx, user)
	case "view_gifts":
		return r.viewGifts(ctx, user)
	case "close_group":
		if arg != "" {
			return r.close(ctx, user, arg)
		}
		return r.reply(user, r.sessions.StartCloseGroup(ctx, user)...)
	case "delete_group":
		return r.reply(user, r.sessions.StartDeleteGroup(ctx, user)...)
	case "invite":
		return r.invites(ctx, user)
	}
	return r.reply(user, fmt.Sprintf("Unknown command /%s.", ev.Command), commandsText)
}

// message handles free text and media: the active flow first, then a
// forwarded invite.
func (r *Router) message(ctx context.Context, user *models.User, ev Event) []notify.Message {
	in := session.Input{Text: ev.Text, MediaRef: ev.MediaRef, Caption: ev.Caption}
	if handled, replies := r.sessions.Handle(ctx, user, in); handled {
		return r.reply(user, replies...)
	}
	if code, ok := services.ParseInviteCode(ev.Text + "\n" + ev.Caption); ok {
		return r.join(ctx, user, code)
	}
	if session.IsCancel(ev.Text) {
		return r.reply(user, r.sessions.Cancel(ctx, user)...)
	}
	return r.reply(user, notUnderstoodText)
}

func (r *Router) join(ctx context.Context, user *models.User, code string) []notify.Message {
	res, err := r.groups.JoinGroup(ctx, user.ID, code)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	return r.reply(user, fmt.Sprintf("You joined group '%s' as %s.\nUse /set_name to change your name before the draw.",
		res.Group.Name, res.Participant.Name))
}

func (r *Router) draw(ctx context.Context, user *models.User) []notify.Message {
	g, err := r.groups.OwnedGroup(ctx, user.ID, models.OpenStatuses...)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	res, err := r.groups.Draw(ctx, user.ID, g.ID)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	return r.reply(user, fmt.Sprintf("The draw in group '%s' is done: %d participants, assignments %s.",
		res.Group.Name, res.Pairs, res.Delivery.Summary()))
}

func (r *Router) distribute(ctx context.Context, user *models.User) []notify.Message {
	g, err := r.groups.OwnedGroup(ctx, user.ID, models.OpenStatuses...)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	res, err := r.groups.Distribute(ctx, user.ID, g.ID)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	text := fmt.Sprintf("Gifts in group '%s' have been distributed, %s.", res.Group.Name, res.Delivery.Summary())
	if res.AutoClosed {
		text += "\nThe close date has been reached, so the group is now closed."
	}
	return r.reply(user, text)
}

func (r *Router) close(ctx context.Context, user *models.User, message string) []notify.Message {
	g, err := r.groups.OwnedGroup(ctx, user.ID, models.OpenStatuses...)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	res, err := r.groups.ForceClose(ctx, user.ID, g.ID, message)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	return r.reply(user, fmt.Sprintf("Group '%s' is closed. Farewell message %s.", res.Group.Name, res.Delivery.Summary()))
}

func (r *Router) myGroups(ctx context.Context, user *models.User) []notify.Message {
	overview, err := r.groups.MyGroups(ctx, user.ID)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	return r.reply(user, renderOverview(overview))
}

func (r *Router) viewGifts(ctx context.Context, user *models.User) []notify.Message {
	gifts, err := r.groups.ReceivedGifts(ctx, user.ID)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	if len(gifts) == 0 {
		return r.reply(user, "You have not received any gifts yet.")
	}
	out := make([]notify.Message, 0, len(gifts))
	for _, g := range gifts {
		msg := notify.NewMessage(user.ExternalID, notify.KindGift,
			fmt.Sprintf("Your gift in group '%s':\n%s", g.Group.Name, g.Text))
		if g.MediaRef != "" {
			msg = msg.WithMedia(g.MediaRef)
		}
		out = append(out, msg)
	}
	return out
}

func (r *Router) invites(ctx context.Context, user *models.User) []notify.Message {
	invites, err := r.groups.Invites(ctx, user.ID)
	if err != nil {
		return r.failed(ctx, user.ExternalID, err)
	}
	if len(invites) == 0 {
		return r.reply(user, "You have no groups that are open for joining. Use /create_group to start one.")
	}
	out := make([]notify.Message, 0, len(invites))
	for _, inv := range invites {
		out = append(out, notify.NewMessage(user.ExternalID, notify.KindInvite, inv.Render()))
	}
	return out
}

func (r *Router) reply(user *models.User, texts ...string) []notify.Message {
	out := make([]notify.Message, 0, len(texts))
	for _, t := range texts {
		out = append(out, notify.NewMessage(user.ExternalID, notify.KindReply, t))
	}
	return out
}

// failed logs unexpected errors and turns any error into a reply.
func (r *Router) failed(ctx context.Context, userID string, err error) []notify.Message {
	if !errors.Is(err, services.ErrValidation) &&
		!errors.Is(err, services.ErrStateConflict) &&
		!errors.Is(err, services.ErrNotFound) {
		r.logger.ErrorContext(ctx, "command failed", logger.UserID(userID), zap.Error(err))
	}
	// A bad argument can be retyped; anything else ends the open flow.
	if !errors.Is(err, services.ErrValidation) {
		r.sessions.Abort(ctx, userID)
	}
	return []notify.Message{notify.NewMessage(userID, notify.KindReply, services.UserMessage(err))}
}
