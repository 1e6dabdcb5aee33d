package services

import (
	"context"
	"fmt"

	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/repositories"
)

type OwnedGroup struct {
	Group            models.Group
	ParticipantCount int64
}

// Membership is a group the user joined but does not own.
type Membership struct {
	Group       models.Group
	Participant models.Participant
	// ReceiverName is set while the group is drawn.
	ReceiverName string
}

type Overview struct {
	Owned  []OwnedGroup
	Joined []Membership
}

// MyGroups lists the groups a user owns and the ones they joined.
func (s *GroupService) MyGroups(ctx context.Context, userID uint) (*Overview, error) {
	owned, err := s.Groups.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned groups: %w", err)
	}
	out := &Overview{}
	for _, g := range owned {
		n, err := s.Participants.CountByGroup(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count participants: %w", err)
		}
		out.Owned = append(out.Owned, OwnedGroup{Group: g, ParticipantCount: n})
	}

	joined, err := s.joined(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range joined {
		m := Membership{Group: p.Group, Participant: p}
		if p.Group.Status == models.StatusDrawn {
			d, err := s.Draws.GetByGiver(ctx, p.ID)
			switch {
			case err == nil:
				m.ReceiverName = d.Receiver.Name
			case !repositories.IsNotFound(err):
				return nil, fmt.Errorf("failed to load draw: %w", err)
			}
		}
		out.Joined = append(out.Joined, m)
	}
	return out, nil
}

type ReceivedGift struct {
	Group    models.Group
	Text     string
	MediaRef string
}

// ReceivedGifts returns what the user received in groups that have reached
// distribution.
func (s *GroupService) ReceivedGifts(ctx context.Context, userID uint) ([]ReceivedGift, error) {
	draws, err := s.Draws.ListReceivedByUser(ctx, userID, models.StatusDistribution, models.StatusClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to list received gifts: %w", err)
	}
	gifts := make([]ReceivedGift, 0, len(draws))
	for _, d := range draws {
		g := ReceivedGift{Group: d.Group, Text: giftText(&d.Group, &d.Giver)}
		if d.Group.GiftViaBot && d.Giver.HasGift() {
			g.MediaRef = d.Giver.GiftMediaRef
		}
		gifts = append(gifts, g)
	}
	return gifts, nil
}

// OwnedGroup returns the caller's oldest owned group in one of the statuses.
// Owner commands act on it.
func (s *GroupService) OwnedGroup(ctx context.Context, ownerID uint, statuses ...models.Status) (*models.Group, error) {
	groups, err := s.Groups.ListByOwner(ctx, ownerID, statuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned groups: %w", err)
	}
	if len(groups) == 0 {
		return nil, ErrNoOwnedGroup
	}
	return &groups[0], nil
}

// NameCandidates are memberships whose name can still change.
func (s *GroupService) NameCandidates(ctx context.Context, userID uint) ([]models.Participant, error) {
	ps, err := s.Participants.ListByUser(ctx, userID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return ps, nil
}

// LeaveCandidates are open groups the user joined without owning them.
func (s *GroupService) LeaveCandidates(ctx context.Context, userID uint) ([]models.Participant, error) {
	return s.joined(ctx, userID, models.OpenStatuses...)
}

type ClosedGroup struct {
	Group   models.Group
	IsOwner bool
}

// DeleteCandidates are the closed groups the user owns, then the closed
// groups they joined.
func (s *GroupService) DeleteCandidates(ctx context.Context, userID uint) ([]ClosedGroup, error) {
	owned, err := s.Groups.ListByOwner(ctx, userID, models.StatusClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned groups: %w", err)
	}
	joined, err := s.joined(ctx, userID, models.StatusClosed)
	if err != nil {
		return nil, err
	}
	out := make([]ClosedGroup, 0, len(owned)+len(joined))
	for _, g := range owned {
		out = append(out, ClosedGroup{Group: g, IsOwner: true})
	}
	for _, p := range joined {
		out = append(out, ClosedGroup{Group: p.Group})
	}
	return out, nil
}

// Invites returns an invite for every active group the user owns or joined.
func (s *GroupService) Invites(ctx context.Context, userID uint) ([]Invite, error) {
	owned, err := s.Groups.ListByOwner(ctx, userID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned groups: %w", err)
	}
	joined, err := s.joined(ctx, userID, models.StatusActive)
	if err != nil {
		return nil, err
	}
	invites := make([]Invite, 0, len(owned)+len(joined))
	for i := range owned {
		invites = append(invites, NewInvite(&owned[i]))
	}
	for i := range joined {
		invites = append(invites, NewInvite(&joined[i].Group))
	}
	return invites, nil
}

func (s *GroupService) joined(ctx context.Context, userID uint, statuses ...models.Status) ([]models.Participant, error) {
	ps, err := s.Participants.ListByUser(ctx, userID, statuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	out := ps[:0]
	for _, p := range ps {
		if p.Group.OwnerID != userID {
			out = append(out, p)
		}
	}
	return out, nil
}
