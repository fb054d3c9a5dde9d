package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	gormlog "gorm.io/gorm/logger"

	"github.com/charleshuang3/invitegate/internal/gormw"
)

func setupTestDB(t *testing.T) *gormw.DB {
	t.Helper()

	// A single connection keeps every goroutine on the same in-memory
	// sqlite database.
	db, err := gormw.Open(&gormw.Config{
		MaxOpenConns: 1,
		LogLevel:     gormlog.Silent,
	})
	require.NoError(t, err)

	err = db.Migrate()
	require.NoError(t, err)

	return db
}
