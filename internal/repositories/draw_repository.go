package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/SecretSanta/internal/models"
)

type DrawRepository struct {
	db *gorm.DB
}

func NewDrawRepository(db *gorm.DB) *DrawRepository {
	return &DrawRepository{db: db}
}

// CreateBatch inserts all draws of one group in a single statement.
func (r *DrawRepository) CreateBatch(ctx context.Context, draws []models.Draw) error {
	if len(draws) == 0 {
		return nil
	}
	return conn(ctx, r.db).Omit(clause.Associations).Create(&draws).Error
}

func (r *DrawRepository) CountByGroup(ctx context.Context, groupID uint) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.Draw{}).Where("group_id = ?", groupID).Count(&n).Error
	return n, err
}

// ListByGroup loads giver and receiver participants with their users.
func (r *DrawRepository) ListByGroup(ctx context.Context, groupID uint) ([]models.Draw, error) {
	var draws []models.Draw
	err := conn(ctx, r.db).
		Preload("Giver.User").
		Preload("Receiver.User").
		Where("group_id = ?", groupID).
		Order("id").
		Find(&draws).Error
	return draws, err
}

func (r *DrawRepository) GetByGiver(ctx context.Context, giverID uint) (*models.Draw, error) {
	var d models.Draw
	err := conn(ctx, r.db).Preload("Receiver").Where("giver_id = ?", giverID).First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListReceivedByUser returns draws in which the user is the receiver and the
// group is in one of the statuses.
func (r *DrawRepository) ListReceivedByUser(ctx context.Context, userID uint, statuses ...models.Status) ([]models.Draw, error) {
	var draws []models.Draw
	err := conn(ctx, r.db).
		Preload("Giver").
		Preload("Group").
		Joins("JOIN participants rp ON rp.id = draws.receiver_id").
		Joins("JOIN santa_groups g ON g.id = draws.group_id").
		Where("rp.user_id = ? AND g.status IN ?", userID, statuses).
		Order("draws.id").
		Find(&draws).Error
	return draws, err
}
