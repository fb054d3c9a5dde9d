package storage

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/models"
)

const emailLogRetention = 90 * 24 * time.Hour

func AppendEmailLog(db *gormw.DB, entry *models.EmailLog) error {
	return db.Create(entry).Error
}

// Email logs pile up forever if not register a cleaner.
func RegisterEmailLogCleaner(scheduler gocron.Scheduler, db *gormw.DB) {
	_, _ = scheduler.NewJob(
		gocron.CronJob(
			// 4am Daily
			"0 4 * * *",
			false,
		),
		gocron.NewTask(
			func() {
				logger.Info().Msg("Cleaning up old email logs")
				cutoff := time.Now().Add(-emailLogRetention)
				db.Where("sent_at < ?", cutoff).Delete(&models.EmailLog{})
			},
		),
	)
}
