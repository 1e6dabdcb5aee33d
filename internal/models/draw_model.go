package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrSelfAssignment = errors.New("giver and receiver must differ")

// Draw assigns one giver to one receiver within a group. Rows are created in
// bulk by the draw transition and never updated.
type Draw struct {
	ID uint `gorm:"primaryKey" json:"id"`

	GroupID    uint        `gorm:"not null;uniqueIndex:idx_draw_group_giver;uniqueIndex:idx_draw_group_receiver" json:"group_id"`
	Group      Group       `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	GiverID    uint        `gorm:"not null;uniqueIndex:idx_draw_group_giver" json:"giver_id"`
	Giver      Participant `gorm:"foreignKey:GiverID;constraint:OnDelete:CASCADE" json:"-"`
	ReceiverID uint        `gorm:"not null;uniqueIndex:idx_draw_group_receiver;check:chk_draw_not_self,receiver_id <> giver_id" json:"receiver_id"`
	Receiver   Participant `gorm:"foreignKey:ReceiverID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

func (Draw) TableName() string {
	return "draws"
}

func (d *Draw) BeforeCreate(tx *gorm.DB) error {
	if d.GiverID == d.ReceiverID {
		return ErrSelfAssignment
	}
	return nil
}

// All lists every model in migration order.
func All() []any {
	return []any{&User{}, &Group{}, &Participant{}, &Draw{}}
}
