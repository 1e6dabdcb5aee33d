package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/repositories"
	"github.com/Gopher0727/SecretSanta/internal/utils"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

// GiftService stores the gift each giver leaves for their receiver.
type GiftService struct {
	Stores
	logger *logger.Logger
}

func NewGiftService(stores Stores, log *logger.Logger) *GiftService {
	return &GiftService{Stores: stores, logger: log.Named("gifts")}
}

// GiftInput is one submission. With MediaRef set, Text is the caption.
type GiftInput struct {
	Text     string
	MediaRef string
}

// Apply merges the input into the participant's gift:
// media without a caption keeps the stored text, media with a caption replaces
// both, text alone replaces the text and drops the media.
func (in GiftInput) Apply(p *models.Participant) error {
	text := strings.TrimSpace(in.Text)
	if utils.RuneLen(text) > models.MaxGiftTextLen {
		return invalid("gift", "the gift text is too long (at most %d characters)", models.MaxGiftTextLen)
	}
	switch {
	case in.MediaRef != "":
		p.GiftMediaRef = in.MediaRef
		if text != "" {
			p.GiftText = text
		}
	case text != "":
		p.GiftText = text
		p.GiftMediaRef = ""
	default:
		return invalid("gift", "send the gift as text or as a photo")
	}
	if p.GiftText == "" && p.GiftMediaRef == "" {
		return invalid("gift", "the gift must contain text or a photo")
	}
	p.GiftFinalized = true
	return nil
}

// SetGift records the caller's gift in a group that collects gifts through
// the bot. Gifts can change only while the group is drawn.
func (s *GiftService) SetGift(ctx context.Context, userID, groupID uint, in GiftInput) (*models.Participant, error) {
	var p *models.Participant
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		group, err := s.Groups.GetByIDForUpdate(ctx, groupID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("failed to load group: %w", err)
		}
		if p, err = s.Participants.Get(ctx, groupID, userID); err != nil {
			if repositories.IsNotFound(err) {
				return ErrNotParticipant
			}
			return fmt.Errorf("failed to load participant: %w", err)
		}
		if !group.GiftViaBot {
			return ErrGiftsNotViaBot
		}
		if group.Status != models.StatusDrawn {
			return ErrGiftLocked
		}
		if err := in.Apply(p); err != nil {
			return err
		}
		if err := s.Participants.SaveGift(ctx, p); err != nil {
			return fmt.Errorf("failed to save gift: %w", err)
		}
		p.Group = *group
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "gift saved",
		logger.GroupID(groupID),
		zap.Uint("participant_id", p.ID),
		zap.Bool("has_media", p.GiftMediaRef != ""),
	)
	return p, nil
}

// Candidates are the memberships whose gift can be changed right now. When
// the user has bot-collected groups but none of them is still drawn, the
// result is ErrGiftLocked.
func (s *GiftService) Candidates(ctx context.Context, userID uint) ([]models.Participant, error) {
	ps, err := s.Participants.ListByUser(ctx, userID, models.StatusDrawn, models.StatusDistribution)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	var viaBot, editable int
	out := ps[:0]
	for _, p := range ps {
		if !p.Group.GiftViaBot {
			continue
		}
		viaBot++
		if p.Group.Status == models.StatusDrawn {
			editable++
			out = append(out, p)
		}
	}
	if viaBot > 0 && editable == 0 {
		return nil, ErrGiftLocked
	}
	return out, nil
}
