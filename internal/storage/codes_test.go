package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleshuang3/invitegate/internal/codegen"
	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/models"
)

var testGen = codegen.New("SUMMIT")

func createCode(t *testing.T, db *gormw.DB, code *models.InvitationCode) *models.InvitationCode {
	t.Helper()
	require.NoError(t, db.Create(code).Error)
	return code
}

func futureExpiry() *time.Time {
	ea := time.Now().Add(24 * time.Hour)
	return &ea
}

func TestCreateCodeBatch(t *testing.T) {
	db := setupTestDB(t)

	codes, err := CreateCodeBatch(db, testGen, "owner-1", 5, 90*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, codes, 5)

	seen := map[string]bool{}
	for _, c := range codes {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "owner-1", c.AssignedToUserID)
		assert.False(t, c.IsUsed)
		assert.Regexp(t, `^SUMMIT[A-Z0-9]{6}$`, c.Code)
		require.NotNil(t, c.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(90*24*time.Hour), *c.ExpiresAt, time.Minute)
		assert.False(t, seen[c.Code], "duplicate code in batch")
		seen[c.Code] = true
	}

	// All five visible in the store.
	all, err := ListAllCodes(db)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestValidateCode(t *testing.T) {
	db := setupTestDB(t)

	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITAAA111",
		AssignedToUserID: "owner-1",
		ExpiresAt:        futureExpiry(),
	})

	t.Run("available code", func(t *testing.T) {
		got, err := ValidateCode(db, "SUMMITAAA111")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", got.AssignedToUserID)
	})

	t.Run("lookup is case insensitive", func(t *testing.T) {
		got, err := ValidateCode(db, "  summitaaa111 ")
		require.NoError(t, err)
		assert.Equal(t, "SUMMITAAA111", got.Code)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := ValidateCode(db, "SUMMITZZZ999")
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("used code", func(t *testing.T) {
		createCode(t, db, &models.InvitationCode{
			Code:             "SUMMITBBB222",
			AssignedToUserID: "owner-1",
			IsUsed:           true,
			ExpiresAt:        futureExpiry(),
		})
		_, err := ValidateCode(db, "SUMMITBBB222")
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("expired code", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		createCode(t, db, &models.InvitationCode{
			Code:             "SUMMITCCC333",
			AssignedToUserID: "owner-1",
			ExpiresAt:        &past,
		})
		_, err := ValidateCode(db, "SUMMITCCC333")
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("nil expiry never expires", func(t *testing.T) {
		createCode(t, db, &models.InvitationCode{
			Code:             "SUMMITDDD444",
			AssignedToUserID: models.AdminSentinelID,
		})
		_, err := ValidateCode(db, "SUMMITDDD444")
		assert.NoError(t, err)
	})

	t.Run("reserved code still validates", func(t *testing.T) {
		email := "friend@example.com"
		createCode(t, db, &models.InvitationCode{
			Code:             "SUMMITEEE555",
			AssignedToUserID: "owner-1",
			ReservedForEmail: &email,
			ExpiresAt:        futureExpiry(),
		})
		_, err := ValidateCode(db, "SUMMITEEE555")
		assert.NoError(t, err)
	})
}

func TestConsumeCode(t *testing.T) {
	db := setupTestDB(t)

	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITAAA111",
		AssignedToUserID: "owner-1",
		ExpiresAt:        futureExpiry(),
	})

	require.NoError(t, ConsumeCode(db, "summitaaa111", "user-1"))

	got := &models.InvitationCode{}
	require.NoError(t, db.Where("code = ?", "SUMMITAAA111").First(got).Error)
	assert.True(t, got.IsUsed)
	require.NotNil(t, got.UsedByUserID)
	assert.Equal(t, "user-1", *got.UsedByUserID)
	assert.NotNil(t, got.UsedAt)

	// Second redemption loses.
	err := ConsumeCode(db, "SUMMITAAA111", "user-2")
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)

	got = &models.InvitationCode{}
	require.NoError(t, db.Where("code = ?", "SUMMITAAA111").First(got).Error)
	assert.Equal(t, "user-1", *got.UsedByUserID)
}

func TestConsumeCodeConcurrent(t *testing.T) {
	db := setupTestDB(t)

	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITAAA111",
		AssignedToUserID: "owner-1",
		ExpiresAt:        futureExpiry(),
	})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, user := range []string{"user-1", "user-2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			errs[i] = ConsumeCode(db, "SUMMITAAA111", user)
		}(i, user)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrCodeAlreadyUsed):
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	got := &models.InvitationCode{}
	require.NoError(t, db.Where("code = ?", "SUMMITAAA111").First(got).Error)
	assert.True(t, got.IsUsed)
	assert.NotNil(t, got.UsedByUserID)
}

func TestReserveCode(t *testing.T) {
	db := setupTestDB(t)

	// Oldest first: give the rows distinct creation times.
	old := createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITAAA111",
		AssignedToUserID: "owner-1",
		ExpiresAt:        futureExpiry(),
		CreatedAt:        time.Now().Add(-2 * time.Hour),
	})
	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITBBB222",
		AssignedToUserID: "owner-1",
		ExpiresAt:        futureExpiry(),
		CreatedAt:        time.Now().Add(-1 * time.Hour),
	})

	got, err := ReserveCode(db, "owner-1", "friend@example.com")
	require.NoError(t, err)
	assert.Equal(t, old.Code, got.Code, "oldest available code should be picked")
	require.NotNil(t, got.ReservedForEmail)
	assert.Equal(t, "friend@example.com", *got.ReservedForEmail)
	assert.NotNil(t, got.ReservedAt)

	t.Run("idempotent per owner and email", func(t *testing.T) {
		again, err := ReserveCode(db, "owner-1", "friend@example.com")
		require.NoError(t, err)
		assert.Equal(t, got.ID, again.ID)
	})

	t.Run("different email gets the next code", func(t *testing.T) {
		other, err := ReserveCode(db, "owner-1", "other@example.com")
		require.NoError(t, err)
		assert.Equal(t, "SUMMITBBB222", other.Code)
	})

	t.Run("pool drained", func(t *testing.T) {
		_, err := ReserveCode(db, "owner-1", "third@example.com")
		assert.ErrorIs(t, err, ErrNoCodeAvailable)
	})

	t.Run("owner without codes", func(t *testing.T) {
		_, err := ReserveCode(db, "owner-2", "friend@example.com")
		assert.ErrorIs(t, err, ErrNoCodeAvailable)
	})
}

func TestReserveCodeConcurrent(t *testing.T) {
	db := setupTestDB(t)

	// Exactly one available code, two competing reservations.
	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITAAA111",
		AssignedToUserID: "owner-1",
		ExpiresAt:        futureExpiry(),
	})

	type res struct {
		code *models.InvitationCode
		err  error
	}
	results := make([]res, 2)

	var wg sync.WaitGroup
	for i, email := range []string{"a@example.com", "b@example.com"} {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			code, err := ReserveCode(db, "owner-1", email)
			results[i] = res{code, err}
		}(i, email)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, r := range results {
		switch {
		case r.err == nil:
			wins++
			assert.Equal(t, "SUMMITAAA111", r.code.Code)
		case assert.ErrorIs(t, r.err, ErrNoCodeAvailable):
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
}

func TestUnreserveCode(t *testing.T) {
	db := setupTestDB(t)

	email := "friend@example.com"
	now := time.Now()
	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITAAA111",
		AssignedToUserID: "owner-1",
		ReservedForEmail: &email,
		ReservedAt:       &now,
		ExpiresAt:        futureExpiry(),
	})

	require.NoError(t, UnreserveCode(db, "SUMMITAAA111"))

	got := &models.InvitationCode{}
	require.NoError(t, db.Where("code = ?", "SUMMITAAA111").First(got).Error)
	assert.Nil(t, got.ReservedForEmail)
	assert.Nil(t, got.ReservedAt)

	// Back in the pool.
	reserved, err := ReserveCode(db, "owner-1", "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, "SUMMITAAA111", reserved.Code)
}

func TestListCodes(t *testing.T) {
	db := setupTestDB(t)

	used := "user-9"
	usedAt := time.Now().Add(-time.Hour)
	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITAAA111",
		AssignedToUserID: "owner-1",
		CreatedAt:        time.Now().Add(-3 * time.Hour),
		ExpiresAt:        futureExpiry(),
	})
	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITBBB222",
		AssignedToUserID: "owner-1",
		CreatedAt:        time.Now().Add(-2 * time.Hour),
		IsUsed:           true,
		UsedByUserID:     &used,
		UsedAt:           &usedAt,
		ExpiresAt:        futureExpiry(),
	})
	createCode(t, db, &models.InvitationCode{
		Code:             "SUMMITCCC333",
		AssignedToUserID: "owner-2",
		CreatedAt:        time.Now().Add(-1 * time.Hour),
		ExpiresAt:        futureExpiry(),
	})

	byOwner, err := ListCodesByOwner(db, "owner-1")
	require.NoError(t, err)
	require.Len(t, byOwner, 2)
	// Newest first.
	assert.Equal(t, "SUMMITBBB222", byOwner[0].Code)
	assert.Equal(t, "SUMMITAAA111", byOwner[1].Code)

	usedByOwner, err := ListUsedCodesByOwner(db, "owner-1")
	require.NoError(t, err)
	require.Len(t, usedByOwner, 1)
	assert.Equal(t, "SUMMITBBB222", usedByOwner[0].Code)

	all, err := ListAllCodes(db)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := CountActiveCodes(db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, active)
}
