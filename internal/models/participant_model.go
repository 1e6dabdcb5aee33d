package models

import "time"

const (
	MaxParticipantNameLen = 200
	MaxGiftTextLen        = 2000
)

// Participant is one user's membership in one group, plus the gift they
// prepared for their receiver.
type Participant struct {
	ID uint `gorm:"primaryKey" json:"id"`

	GroupID uint   `gorm:"not null;uniqueIndex:idx_participant_group_user" json:"group_id"`
	Group   Group  `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	UserID  uint   `gorm:"not null;uniqueIndex:idx_participant_group_user;index" json:"user_id"`
	User    User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Name    string `gorm:"size:200;not null" json:"name"`

	GiftText      string `gorm:"type:text" json:"gift_text,omitempty"`
	GiftMediaRef  string `gorm:"size:512" json:"gift_media_ref,omitempty"`
	GiftFinalized bool   `gorm:"not null;default:false" json:"gift_finalized"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Participant) TableName() string {
	return "participants"
}

func (p *Participant) HasGift() bool {
	return p.GiftFinalized && (p.GiftText != "" || p.GiftMediaRef != "")
}
