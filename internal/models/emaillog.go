package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// EmailLog is an append-only audit record of every delivery attempt. It is
// never read back by the core flows.
type EmailLog struct {
	ID           string `gorm:"primarykey"`
	ToEmail      string
	FromEmail    string
	Subject      string
	TemplateType string
	Status       string
	ErrorMessage string
	SentAt       time.Time
}

func (e *EmailLog) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	return nil
}
