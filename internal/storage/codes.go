package storage

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charleshuang3/invitegate/internal/codegen"
	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/models"
)

var (
	logger = log.With().Str("component", "storage").Logger()

	// ErrCodeNotFound: the code does not exist, is used, or is expired.
	ErrCodeNotFound = errors.New("storage: invitation code not found")
	// ErrCodeAlreadyUsed: a concurrent redemption won the conditional
	// update.
	ErrCodeAlreadyUsed = errors.New("storage: invitation code already used")
	// ErrNoCodeAvailable: the owner has no unused, unreserved, unexpired
	// code left.
	ErrNoCodeAvailable = errors.New("storage: no invitation code available")

	errReserveRaced = errors.New("storage: reservation raced, retry")
)

// Lost reservation races are retried on a fresh candidate row this many
// times before giving up.
const reserveAttempts = 5

const availableCond = "is_used = ? AND reserved_for_email IS NULL AND (expires_at IS NULL OR expires_at > ?)"

func codeExists(db *gormw.DB, code string) (bool, error) {
	var n int64
	if err := db.Model(&models.InvitationCode{}).
		Where("code = ?", codegen.Canonical(code)).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateCodeBatch mints count unique codes owned by ownerID, each valid
// for the given duration, and persists them in a single batch insert so a
// failure leaves no partial codes behind. The returned rows are the
// persisted ones, ids and timestamps included.
func CreateCodeBatch(db *gormw.DB, gen *codegen.Generator, ownerID string, count int, validity time.Duration) ([]*models.InvitationCode, error) {
	expiresAt := time.Now().Add(validity)
	seen := map[string]bool{}

	codes := make([]*models.InvitationCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := gen.GenerateUnique(func(c string) (bool, error) {
			if seen[c] {
				return true, nil
			}
			return codeExists(db, c)
		})
		if err != nil {
			if errors.Is(err, codegen.ErrCodeSpaceExhausted) {
				logger.Error().Str("prefix", gen.Prefix()).Msg("Invitation code space exhausted")
			}
			return nil, err
		}
		seen[code] = true
		ea := expiresAt
		codes = append(codes, &models.InvitationCode{
			Code:             code,
			AssignedToUserID: ownerID,
			IsUsed:           false,
			ExpiresAt:        &ea,
		})
	}

	if err := db.Create(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// ValidateCode returns the code row only if it is currently available for
// redemption: unused and unexpired. Reservation state is deliberately
// ignored, a reserved code is still redeemable directly.
func ValidateCode(db *gormw.DB, code string) (*models.InvitationCode, error) {
	res := &models.InvitationCode{}
	err := db.
		Where("code = ? AND is_used = ? AND (expires_at IS NULL OR expires_at > ?)",
			codegen.Canonical(code), false, time.Now()).
		First(res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return res, nil
}

// ConsumeCode irreversibly redeems the code for usedByUserID. The update
// is conditioned on is_used = false, so two concurrent redemptions resolve
// to exactly one winner; the loser gets ErrCodeAlreadyUsed.
func ConsumeCode(db *gormw.DB, code, usedByUserID string) error {
	res := db.Model(&models.InvitationCode{}).
		Where("code = ? AND is_used = ?", codegen.Canonical(code), false).
		Updates(map[string]interface{}{
			"is_used":         true,
			"used_by_user_id": usedByUserID,
			"used_at":         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCodeAlreadyUsed
	}
	return nil
}

// ReserveCode holds one of ownerID's available codes for email.
//
// It is idempotent per (owner, email): an active reservation for the pair
// is returned unchanged. Otherwise the oldest available code is locked
// (FOR UPDATE SKIP LOCKED on postgres; sqlite serializes writers) and
// claimed with a conditional update double-checked on the reservation
// still being empty, retrying on a lost race so concurrent callers never
// land on the same row.
func ReserveCode(db *gormw.DB, ownerID, email string) (*models.InvitationCode, error) {
	now := time.Now()

	existing := &models.InvitationCode{}
	err := db.
		Where("assigned_to_user_id = ? AND reserved_for_email = ? AND is_used = ? AND (expires_at IS NULL OR expires_at > ?)",
			ownerID, email, false, now).
		First(existing).Error
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		reserved := &models.InvitationCode{}
		err := db.Transaction(func(tx *gorm.DB) error {
			q := tx.
				Where("assigned_to_user_id = ? AND "+availableCond, ownerID, false, now).
				Order("created_at ASC")
			if tx.Dialector.Name() == "postgres" {
				q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
			}

			candidate := &models.InvitationCode{}
			if err := q.First(candidate).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNoCodeAvailable
				}
				return err
			}

			res := tx.Model(&models.InvitationCode{}).
				Where("id = ? AND is_used = ? AND reserved_for_email IS NULL", candidate.ID, false).
				Updates(map[string]interface{}{
					"reserved_for_email": email,
					"reserved_at":        now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errReserveRaced
			}
			return tx.Where("id = ?", candidate.ID).First(reserved).Error
		})
		if err == nil {
			return reserved, nil
		}
		if errors.Is(err, errReserveRaced) {
			continue
		}
		return nil, err
	}
	// Every retry lost its row to a concurrent reservation, the pool is
	// effectively drained.
	return nil, ErrNoCodeAvailable
}

// UnreserveCode releases a reservation so the code returns to the
// available pool, used to compensate a failed invitation email.
// Conditioned on the code still being unused.
func UnreserveCode(db *gormw.DB, code string) error {
	return db.Model(&models.InvitationCode{}).
		Where("code = ? AND is_used = ?", codegen.Canonical(code), false).
		Updates(map[string]interface{}{
			"reserved_for_email": nil,
			"reserved_at":        nil,
		}).Error
}

func ListCodesByOwner(db *gormw.DB, ownerID string) ([]*models.InvitationCode, error) {
	var codes []*models.InvitationCode
	err := db.
		Where("assigned_to_user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&codes).Error
	return codes, err
}

func ListAllCodes(db *gormw.DB) ([]*models.InvitationCode, error) {
	var codes []*models.InvitationCode
	err := db.Order("created_at DESC").Find(&codes).Error
	return codes, err
}

func ListUsedCodesByOwner(db *gormw.DB, ownerID string) ([]*models.InvitationCode, error) {
	var codes []*models.InvitationCode
	err := db.
		Where("assigned_to_user_id = ? AND is_used = ?", ownerID, true).
		Order("used_at DESC").
		Find(&codes).Error
	return codes, err
}

func CountActiveCodes(db *gormw.DB) (int64, error) {
	var n int64
	err := db.Model(&models.InvitationCode{}).
		Where("is_used = ?", false).
		Count(&n).Error
	return n, err
}
