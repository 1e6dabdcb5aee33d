package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/internal/draw"
	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/repositories"
	"github.com/Gopher0727/SecretSanta/internal/utils"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

type DrawResult struct {
	Group    *models.Group
	Pairs    int
	Fallback bool
	Delivery notify.Result
}

// Draw assigns every participant a receiver and moves the group to drawn.
// Guards are checked in the order owner, status, participant count. Givers are
// notified after the transaction commits.
func (s *GroupService) Draw(ctx context.Context, callerID, groupID uint) (*DrawResult, error) {
	var (
		group   *models.Group
		members map[uint]models.Participant
		pairs   []draw.Pair[uint]
		outcome draw.Outcome
	)
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if group, err = s.lockGroup(ctx, groupID); err != nil {
			return err
		}
		if group.OwnerID != callerID {
			return ErrNotOwner
		}
		if group.Status != models.StatusActive {
			return ErrInvalidState
		}
		participants, err := s.Participants.ListByGroup(ctx, group.ID)
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}
		if len(participants) < 2 {
			return ErrInsufficientParticipants
		}

		ids := make([]uint, len(participants))
		members = make(map[uint]models.Participant, len(participants))
		for i, p := range participants {
			ids[i] = p.ID
			members[p.ID] = p
		}
		if pairs, outcome, err = draw.Assign(s.engine, ids); err != nil {
			return err
		}
		if err := draw.Verify(ids, pairs); err != nil {
			return err
		}

		rows := make([]models.Draw, len(pairs))
		for i, pair := range pairs {
			rows[i] = models.Draw{GroupID: group.ID, GiverID: pair.Giver, ReceiverID: pair.Receiver}
		}
		if err := s.Draws.CreateBatch(ctx, rows); err != nil {
			if repositories.IsDuplicate(err) {
				return ErrInvalidState
			}
			return fmt.Errorf("failed to save draw: %w", err)
		}
		return s.transition(ctx, group, models.StatusDrawn)
	})
	if err != nil {
		return nil, err
	}

	if outcome.Fallback {
		s.logger.WarnContext(ctx, "draw used rotation fallback", logger.GroupID(group.ID), zap.Int("attempts", outcome.Attempts))
	}

	msgs := make([]notify.Message, 0, len(pairs))
	for _, pair := range pairs {
		giver, receiver := members[pair.Giver], members[pair.Receiver]
		msgs = append(msgs, notify.NewMessage(giver.User.ExternalID, notify.KindAssignment, assignmentText(group, receiver.Name)))
	}
	return &DrawResult{
		Group:    group,
		Pairs:    len(pairs),
		Fallback: outcome.Fallback,
		Delivery: s.notifier.Broadcast(ctx, msgs),
	}, nil
}

type DistributeResult struct {
	Group      *models.Group
	AutoClosed bool
	Delivery   notify.Result
}

// Distribute hands every receiver the gift their giver left, or a
// placeholder, and moves the group to distribution. A group whose close date
// has been reached is closed in the same transaction.
func (s *GroupService) Distribute(ctx context.Context, callerID, groupID uint) (*DistributeResult, error) {
	var (
		res   DistributeResult
		draws []models.Draw
	)
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		group, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		res.Group = group
		if group.OwnerID != callerID {
			return ErrNotOwner
		}
		if group.Status != models.StatusDrawn {
			return ErrInvalidState
		}
		if draws, err = s.Draws.ListByGroup(ctx, group.ID); err != nil {
			return fmt.Errorf("failed to list draws: %w", err)
		}
		if err := s.transition(ctx, group, models.StatusDistribution); err != nil {
			return err
		}

		today := utils.DateOnly(s.now())
		if group.CloseDate != nil && !utils.DateOnly(*group.CloseDate).After(today) {
			res.AutoClosed = true
			return s.transition(ctx, group, models.StatusClosed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]notify.Message, 0, len(draws))
	for _, d := range draws {
		msg := notify.NewMessage(d.Receiver.User.ExternalID, notify.KindGift, giftText(res.Group, &d.Giver))
		if res.Group.GiftViaBot && d.Giver.HasGift() && d.Giver.GiftMediaRef != "" {
			msg = msg.WithMedia(d.Giver.GiftMediaRef)
		}
		msgs = append(msgs, msg)
	}
	res.Delivery = s.notifier.Broadcast(ctx, msgs)
	return &res, nil
}

type CloseResult struct {
	Group    *models.Group
	Delivery notify.Result
}

// ForceClose closes an open group on the owner's request and tells every
// participant. An empty message selects the default text.
func (s *GroupService) ForceClose(ctx context.Context, callerID, groupID uint, message string) (*CloseResult, error) {
	message, err := ValidateCloseMessage(message)
	if err != nil {
		return nil, err
	}

	var (
		group        *models.Group
		participants []models.Participant
	)
	err = s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if group, err = s.lockGroup(ctx, groupID); err != nil {
			return err
		}
		if group.OwnerID != callerID {
			return ErrNotOwner
		}
		if !group.Status.IsOpen() {
			return ErrInvalidState
		}
		if participants, err = s.Participants.ListByGroup(ctx, group.ID); err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}
		return s.transition(ctx, group, models.StatusClosed)
	})
	if err != nil {
		return nil, err
	}

	text := ownerClosedText(group, message)
	return &CloseResult{Group: group, Delivery: s.notifier.Broadcast(ctx, closingMessages(participants, text))}, nil
}

type SweepGroup struct {
	GroupID  uint          `json:"group_id"`
	Name     string        `json:"name"`
	Code     string        `json:"code"`
	Delivery notify.Result `json:"delivery"`
}

type SweepResult struct {
	Groups   []SweepGroup  `json:"groups"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Delivery notify.Result `json:"delivery"`
}

// CloseAll closes every group that is not closed yet. Each group is closed in
// its own locked transaction, so a group closed concurrently by its owner is
// skipped rather than closed twice.
func (s *GroupService) CloseAll(ctx context.Context) (*SweepResult, error) {
	open, err := s.Groups.ListByStatus(ctx, models.OpenStatuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to list open groups: %w", err)
	}

	res := &SweepResult{}
	for _, candidate := range open {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		group, participants, err := s.closeForSweep(ctx, candidate.ID)
		if err != nil {
			res.Failed++
			s.logger.ErrorContext(ctx, "failed to close group", logger.GroupID(candidate.ID), zap.Error(err))
			continue
		}
		if group == nil {
			res.Skipped++
			continue
		}

		delivery := s.notifier.Broadcast(ctx, closingMessages(participants, sweepClosedText(group)))
		res.Groups = append(res.Groups, SweepGroup{GroupID: group.ID, Name: group.Name, Code: group.Code, Delivery: delivery})
		res.Delivery.Merge(delivery)
	}

	s.logger.InfoContext(ctx, "close-all sweep finished",
		zap.Int("closed", len(res.Groups)),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// closeForSweep returns a nil group when it was already closed.
func (s *GroupService) closeForSweep(ctx context.Context, groupID uint) (*models.Group, []models.Participant, error) {
	var (
		group        *models.Group
		participants []models.Participant
	)
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		g, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if !g.Status.IsOpen() {
			return nil
		}
		if participants, err = s.Participants.ListByGroup(ctx, g.ID); err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}
		if err := s.transition(ctx, g, models.StatusClosed); err != nil {
			return err
		}
		group = g
		return nil
	})
	return group, participants, err
}

func closingMessages(participants []models.Participant, text string) []notify.Message {
	msgs := make([]notify.Message, 0, len(participants))
	for _, p := range participants {
		msgs = append(msgs, notify.NewMessage(p.User.ExternalID, notify.KindClosing, text))
	}
	return msgs
}
