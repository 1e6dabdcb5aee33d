package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/SecretSanta/internal/models"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts the group and enrolls the owner in the same transaction.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group, owner *models.Participant) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(group).Error; err != nil {
			return err
		}
		owner.GroupID = group.ID
		return tx.Omit(clause.Associations).Create(owner).Error
	})
}

func (r *GroupRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.Group{}).Where("code = ?", code).Count(&n).Error
	return n > 0, err
}

func (r *GroupRepository) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	if err := conn(ctx, r.db).First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// GetByIDForUpdate locks the group row until the surrounding transaction ends.
func (r *GroupRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	if err := forUpdate(conn(ctx, r.db)).First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *GroupRepository) GetByCodeForUpdate(ctx context.Context, code string) (*models.Group, error) {
	var group models.Group
	if err := forUpdate(conn(ctx, r.db)).Where("code = ?", code).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// ListByOwner returns the owner's groups in the given statuses, oldest first.
// No statuses means every status.
func (r *GroupRepository) ListByOwner(ctx context.Context, ownerID uint, statuses ...models.Status) ([]models.Group, error) {
	var groups []models.Group
	q := conn(ctx, r.db).Where("owner_id = ?", ownerID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("id").Find(&groups).Error
	return groups, err
}

func (r *GroupRepository) ListByStatus(ctx context.Context, statuses ...models.Status) ([]models.Group, error) {
	var groups []models.Group
	err := conn(ctx, r.db).Where("status IN ?", statuses).Order("id").Find(&groups).Error
	return groups, err
}

// UpdateStatus writes status and, for drawn, the drawn-at stamp.
func (r *GroupRepository) UpdateStatus(ctx context.Context, group *models.Group, status models.Status, at time.Time) error {
	updates := map[string]any{"status": status}
	if status == models.StatusDrawn {
		updates["drawn_at"] = at
	}
	if err := conn(ctx, r.db).Model(group).Updates(updates).Error; err != nil {
		return err
	}
	group.Status = status
	if status == models.StatusDrawn {
		group.DrawnAt = &at
	}
	return nil
}

// Delete removes the group with its draws and participants.
func (r *GroupRepository) Delete(ctx context.Context, groupID uint) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.Draw{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, groupID).Error
	})
}
