package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	WaitlistStatusPending  = "pending"
	WaitlistStatusPromoted = "promoted"
	WaitlistStatusRejected = "rejected"
)

type WaitlistEntry struct {
	ID    string `gorm:"primarykey"`
	// Email is not unique at the schema level: a rejected entry may apply
	// again. SubmitWaitlist guards against duplicate pending entries.
	Email          string `gorm:"index"`
	FirstName      string
	LastName       string
	Company        string
	CompanyRevenue string
	Role           string
	CompanyWebsite string
	Motivation     string
	// PriorityScore is derived from (CompanyRevenue, Role) at insert time
	// and only drives the admin console sort order.
	PriorityScore int
	Status        string
	AdminNotes    string
	CreatedAt     time.Time
	PromotedAt    *time.Time
}

func (WaitlistEntry) TableName() string {
	return "waitlist"
}

func (w *WaitlistEntry) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
