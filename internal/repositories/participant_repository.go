package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/SecretSanta/internal/models"
)

type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Create fails with gorm.ErrDuplicatedKey when the (group, user) pair exists.
func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	return conn(ctx, r.db).Omit(clause.Associations).Create(p).Error
}

func (r *ParticipantRepository) Get(ctx context.Context, groupID, userID uint) (*models.Participant, error) {
	var p models.Participant
	err := conn(ctx, r.db).Where("group_id = ? AND user_id = ?", groupID, userID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) Exists(ctx context.Context, groupID, userID uint) (bool, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.Participant{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *ParticipantRepository) CountByGroup(ctx context.Context, groupID uint) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.Participant{}).Where("group_id = ?", groupID).Count(&n).Error
	return n, err
}

// ListByGroup returns members in join order with their users loaded.
func (r *ParticipantRepository) ListByGroup(ctx context.Context, groupID uint) ([]models.Participant, error) {
	var ps []models.Participant
	err := conn(ctx, r.db).Preload("User").
		Where("group_id = ?", groupID).
		Order("id").
		Find(&ps).Error
	return ps, err
}

// ListByUser returns the user's memberships whose group is in one of the
// statuses (all when none given), with the group loaded.
func (r *ParticipantRepository) ListByUser(ctx context.Context, userID uint, statuses ...models.Status) ([]models.Participant, error) {
	var ps []models.Participant
	q := conn(ctx, r.db).Joins("Group").Where("participants.user_id = ?", userID)
	if len(statuses) > 0 {
		q = q.Where("\"Group\".\"status\" IN ?", statuses)
	}
	err := q.Order("participants.id").Find(&ps).Error
	return ps, err
}

func (r *ParticipantRepository) UpdateName(ctx context.Context, p *models.Participant, name string) error {
	if err := conn(ctx, r.db).Model(p).Update("name", name).Error; err != nil {
		return err
	}
	p.Name = name
	return nil
}

// SaveGift writes the three gift columns as given.
func (r *ParticipantRepository) SaveGift(ctx context.Context, p *models.Participant) error {
	return conn(ctx, r.db).Model(p).Select("gift_text", "gift_media_ref", "gift_finalized").Updates(p).Error
}

// Delete removes the membership and every draw that references it.
func (r *ParticipantRepository) Delete(ctx context.Context, p *models.Participant) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("giver_id = ? OR receiver_id = ?", p.ID, p.ID).Delete(&models.Draw{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Participant{}, p.ID).Error
	})
}
