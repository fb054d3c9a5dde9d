package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvitationCode is a single-use registration token. Code is always stored
// in its canonical uppercase form, so the unique index doubles as the
// case-insensitive uniqueness constraint.
//
// A code is available iff IsUsed is false, ReservedForEmail is nil and
// ExpiresAt is nil or in the future. IsUsed only ever goes false -> true.
type InvitationCode struct {
	ID               string `gorm:"primarykey"`
	Code             string `gorm:"uniqueIndex"`
	AssignedToUserID string `gorm:"index"`
	UsedByUserID     *string
	IsUsed           bool
	// ExpiresAt nil means the code never expires, only used for
	// admin/legacy codes.
	ExpiresAt        *time.Time
	ReservedForEmail *string
	ReservedAt       *time.Time
	CreatedAt        time.Time
	UsedAt           *time.Time
}

func (c *InvitationCode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Available reports whether the code can still be handed out or redeemed
// at the given instant.
func (c *InvitationCode) Available(now time.Time) bool {
	if c.IsUsed || c.ReservedForEmail != nil {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}
