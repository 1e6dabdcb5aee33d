package models

import (
	"fmt"
	"time"
)

// User is an end user known by the opaque id the transport gives us.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ExternalID string `gorm:"column:external_id;uniqueIndex;size:64;not null" json:"external_id"`
	Username   string `gorm:"size:255" json:"username"`
	FirstName  string `gorm:"size:255" json:"first_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// DefaultDisplayName picks the first name, then the username, then a
// generated label.
func (u *User) DefaultDisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("Participant %s", u.ExternalID)
}
