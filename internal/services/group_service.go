package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/internal/draw"
	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/repositories"
	"github.com/Gopher0727/SecretSanta/internal/utils"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

const (
	maxCodeAttempts    = 10
	MaxCloseMessageLen = 1000
)

// Broadcaster delivers a batch of notifications and reports the outcome.
type Broadcaster interface {
	Broadcast(ctx context.Context, msgs []notify.Message) notify.Result
}

// GroupService owns the group lifecycle: creation, membership, the draw, the
// distribution and closing.
type GroupService struct {
	Stores
	engine   *draw.Engine
	notifier Broadcaster
	logger   *logger.Logger
	now      func() time.Time
}

func NewGroupService(stores Stores, engine *draw.Engine, notifier Broadcaster, log *logger.Logger) *GroupService {
	return &GroupService{
		Stores:   stores,
		engine:   engine,
		notifier: notifier,
		logger:   log.Named("groups"),
		now:      time.Now,
	}
}

type CreateGroupRequest struct {
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	GiftViaBot       bool       `json:"gift_via_bot"`
	DrawDate         *time.Time `json:"draw_date,omitempty"`
	DistributionDate *time.Time `json:"distribution_date,omitempty"`
	CloseDate        *time.Time `json:"close_date,omitempty"`
}

func ValidateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "the name cannot be empty")
	}
	if utils.RuneLen(name) > models.MaxGroupNameLen {
		return "", invalid("name", "the name is too long (at most %d characters)", models.MaxGroupNameLen)
	}
	return name, nil
}

func ValidateDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if utils.RuneLen(desc) > models.MaxDescriptionLen {
		return "", invalid("description", "the description is too long (at most %d characters)", models.MaxDescriptionLen)
	}
	return desc, nil
}

// ValidateDates checks the order draw < distribution < close for the dates
// that are set.
func ValidateDates(drawDate, distributionDate, closeDate *time.Time) error {
	if drawDate != nil && distributionDate != nil && !distributionDate.After(*drawDate) {
		return invalid("distribution_date", "the distribution date must be after the draw date")
	}
	if distributionDate != nil && closeDate != nil && !closeDate.After(*distributionDate) {
		return invalid("close_date", "the close date must be after the distribution date")
	}
	return nil
}

func ValidateParticipantName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "the name cannot be empty")
	}
	if utils.RuneLen(name) > models.MaxParticipantNameLen {
		return "", invalid("name", "the name is too long (at most %d characters)", models.MaxParticipantNameLen)
	}
	return name, nil
}

func ValidateCloseMessage(msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	if utils.RuneLen(msg) > MaxCloseMessageLen {
		return "", invalid("message", "the message is too long (at most %d characters)", MaxCloseMessageLen)
	}
	return msg, nil
}

func (r *CreateGroupRequest) Validate() error {
	var err error
	if r.Name, err = ValidateGroupName(r.Name); err != nil {
		return err
	}
	if r.Description, err = ValidateDescription(r.Description); err != nil {
		return err
	}
	return ValidateDates(r.DrawDate, r.DistributionDate, r.CloseDate)
}

// CheckCanCreate fails when the owner still has a group that is not closed.
func (s *GroupService) CheckCanCreate(ctx context.Context, ownerID uint) error {
	open, err := s.Groups.ListByOwner(ctx, ownerID, models.OpenStatuses...)
	if err != nil {
		return fmt.Errorf("failed to list owned groups: %w", err)
	}
	if len(open) > 0 {
		return fmt.Errorf("%w: %s (%s) is %s", ErrOwnerHasOpenGroup, open[0].Name, open[0].Code, open[0].Status.Label())
	}
	return nil
}

// CreateGroup creates an active group and enrolls the owner under their
// default display name.
func (s *GroupService) CreateGroup(ctx context.Context, ownerID uint, req *CreateGroupRequest) (*models.Group, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var group *models.Group
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		owner, err := s.Users.GetByID(ctx, ownerID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load owner: %w", err)
		}
		if err := s.CheckCanCreate(ctx, ownerID); err != nil {
			return err
		}
		code, err := s.newCode(ctx)
		if err != nil {
			return err
		}

		group = &models.Group{
			Code:             code,
			Name:             req.Name,
			OwnerID:          owner.ID,
			Description:      req.Description,
			GiftViaBot:       req.GiftViaBot,
			Status:           models.StatusActive,
			DrawDate:         req.DrawDate,
			DistributionDate: req.DistributionDate,
			CloseDate:        req.CloseDate,
		}
		member := &models.Participant{UserID: owner.ID, Name: owner.DefaultDisplayName()}
		if err := s.Groups.Create(ctx, group, member); err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "group created",
		logger.GroupID(group.ID),
		zap.String("code", group.Code),
		zap.Uint("owner_id", ownerID),
	)
	return group, nil
}

func (s *GroupService) newCode(ctx context.Context) (string, error) {
	for range maxCodeAttempts {
		code, err := utils.GenerateJoinCode()
		if err != nil {
			return "", err
		}
		exists, err := s.Groups.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check join code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique join code after %d attempts", maxCodeAttempts)
}

type JoinResult struct {
	Group       *models.Group
	Participant *models.Participant
}

// JoinGroup adds the user to the active group with the given code.
func (s *GroupService) JoinGroup(ctx context.Context, userID uint, code string) (*JoinResult, error) {
	code = utils.NormalizeCode(code)
	if code == "" {
		return nil, invalid("code", "the group code cannot be empty")
	}

	var res JoinResult
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		group, err := s.Groups.GetByCodeForUpdate(ctx, code)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("failed to load group: %w", err)
		}
		res.Group = group
		if group.Status != models.StatusActive {
			return fmt.Errorf("%w (status: %s)", ErrGroupNotAccepting, group.Status.Label())
		}

		exists, err := s.Participants.Exists(ctx, group.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if exists {
			return ErrAlreadyMember
		}
		user, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		p := &models.Participant{GroupID: group.ID, UserID: userID, Name: user.DefaultDisplayName()}
		if err := s.Participants.Create(ctx, p); err != nil {
			if repositories.IsDuplicate(err) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("failed to add participant: %w", err)
		}
		res.Participant = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "participant joined", logger.GroupID(res.Group.ID), zap.Uint("participant_id", res.Participant.ID))
	return &res, nil
}

// LeaveGroup removes the caller's membership, together with any draw that
// references it. The owner cannot leave.
func (s *GroupService) LeaveGroup(ctx context.Context, userID, groupID uint) (*models.Group, error) {
	return s.leave(ctx, userID, func(ctx context.Context) (*models.Group, error) {
		return s.lockGroup(ctx, groupID)
	})
}

func (s *GroupService) LeaveGroupByCode(ctx context.Context, userID uint, code string) (*models.Group, error) {
	code = utils.NormalizeCode(code)
	return s.leave(ctx, userID, func(ctx context.Context) (*models.Group, error) {
		g, err := s.Groups.GetByCodeForUpdate(ctx, code)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil, ErrGroupNotFound
			}
			return nil, fmt.Errorf("failed to load group: %w", err)
		}
		return g, nil
	})
}

func (s *GroupService) leave(ctx context.Context, userID uint, load func(ctx context.Context) (*models.Group, error)) (*models.Group, error) {
	var group *models.Group
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if group, err = load(ctx); err != nil {
			return err
		}
		if group.IsClosed() {
			return ErrInvalidState
		}
		if group.OwnerID == userID {
			return ErrOwnerCannotLeave
		}
		p, err := s.participant(ctx, group.ID, userID)
		if err != nil {
			return err
		}
		if err := s.Participants.Delete(ctx, p); err != nil {
			return fmt.Errorf("failed to remove participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "participant left", logger.GroupID(group.ID), zap.Uint("user_id", userID))
	return group, nil
}

// SetName changes the caller's display name in one group. Names are frozen
// once the group leaves active.
func (s *GroupService) SetName(ctx context.Context, userID, groupID uint, name string) (*models.Group, error) {
	name, err := ValidateParticipantName(name)
	if err != nil {
		return nil, err
	}

	var group *models.Group
	err = s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if group, err = s.lockGroup(ctx, groupID); err != nil {
			return err
		}
		p, err := s.participant(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if group.Status != models.StatusActive {
			return ErrNameLocked
		}
		if err := s.Participants.UpdateName(ctx, p, name); err != nil {
			return fmt.Errorf("failed to update name: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

type DeleteResult struct {
	GroupID   uint
	GroupName string
	// WholeGroup is true when the owner deleted the group, false when a
	// participant only removed their own membership.
	WholeGroup bool
}

// DeleteGroup is legal only for closed groups.
func (s *GroupService) DeleteGroup(ctx context.Context, userID, groupID uint) (*DeleteResult, error) {
	var res *DeleteResult
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		group, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if !group.IsClosed() {
			return ErrInvalidState
		}
		res = &DeleteResult{GroupID: group.ID, GroupName: group.Name}

		if group.OwnerID == userID {
			res.WholeGroup = true
			if err := s.Groups.Delete(ctx, group.ID); err != nil {
				return fmt.Errorf("failed to delete group: %w", err)
			}
			return nil
		}
		p, err := s.participant(ctx, group.ID, userID)
		if err != nil {
			return err
		}
		if err := s.Participants.Delete(ctx, p); err != nil {
			return fmt.Errorf("failed to remove participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "group deleted", logger.GroupID(groupID), zap.Bool("whole_group", res.WholeGroup))
	return res, nil
}

// DeleteAllClosed applies DeleteGroup to every closed group the user owns or
// joined. Failures are counted and do not stop the loop.
func (s *GroupService) DeleteAllClosed(ctx context.Context, userID uint) (deleted, total int, err error) {
	candidates, err := s.DeleteCandidates(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range candidates {
		if _, err := s.DeleteGroup(ctx, userID, c.Group.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete group", logger.GroupID(c.Group.ID), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, len(candidates), nil
}

func (s *GroupService) lockGroup(ctx context.Context, id uint) (*models.Group, error) {
	g, err := s.Groups.GetByIDForUpdate(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	return g, nil
}

func (s *GroupService) participant(ctx context.Context, groupID, userID uint) (*models.Participant, error) {
	p, err := s.Participants.Get(ctx, groupID, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrNotParticipant
		}
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}
	return p, nil
}

// transition moves the group to next if the lifecycle allows it.
func (s *GroupService) transition(ctx context.Context, g *models.Group, next models.Status) error {
	if !g.Status.CanTransitionTo(next) {
		return ErrInvalidState
	}
	from := g.Status
	if err := s.Groups.UpdateStatus(ctx, g, next, s.now()); err != nil {
		return fmt.Errorf("failed to update group status: %w", err)
	}
	s.logger.InfoContext(ctx, "group status changed",
		logger.GroupID(g.ID),
		zap.String("from", string(from)),
		logger.Status(string(next)),
	)
	return nil
}
