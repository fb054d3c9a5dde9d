package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminSentinelID is the owner recorded on admin-issued invitation codes.
// It never corresponds to a row in the users table and must never be
// written to User.InvitedBy.
const AdminSentinelID = "admin"

const (
	UserStatusRegistered = "registered"
	UserStatusWaitlisted = "waitlisted"
)

type User struct {
	ID             string `gorm:"primarykey"`
	Email          string `gorm:"uniqueIndex"`
	FirstName      string
	LastName       string
	Company        string
	CompanyRevenue string
	Role           string
	CompanyWebsite string
	Status         string
	// InvitedBy references the user who owned the redeemed code, nil for
	// users admitted with an admin-issued code.
	InvitedBy *string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
