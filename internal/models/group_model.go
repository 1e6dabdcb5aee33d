package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	MaxGroupNameLen   = 200
	MaxDescriptionLen = 4000
)

type Group struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Code        string `gorm:"uniqueIndex;size:16;not null" json:"code"`
	Name        string `gorm:"size:200;not null" json:"name"`
	OwnerID     uint   `gorm:"not null;index" json:"owner_id"`
	Owner       User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT" json:"-"`
	Description string `gorm:"type:text" json:"description"`
	GiftViaBot  bool   `gorm:"not null;default:false" json:"gift_via_bot"`
	Status      Status `gorm:"size:16;not null;default:active;index" json:"status"`

	DrawDate         *time.Time `json:"draw_date,omitempty"`
	DistributionDate *time.Time `json:"distribution_date,omitempty"`
	CloseDate        *time.Time `json:"close_date,omitempty"`
	DrawnAt          *time.Time `json:"drawn_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Group) TableName() string {
	return "santa_groups"
}

// IsClosed is derived from Status; there is no separate column.
func (g *Group) IsClosed() bool {
	return g.Status == StatusClosed
}

// BeforeSave defaults the close date to the day after distribution and
// rejects unknown statuses.
func (g *Group) BeforeSave(tx *gorm.DB) error {
	if g.Status == "" {
		g.Status = StatusActive
	}
	if !g.Status.Valid() {
		return fmt.Errorf("invalid group status %q", g.Status)
	}
	if g.CloseDate == nil && g.DistributionDate != nil {
		d := g.DistributionDate.AddDate(0, 0, 1)
		g.CloseDate = &d
	}
	return nil
}
