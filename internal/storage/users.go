package storage

import (
	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/models"
)

func GetUserByID(db *gormw.DB, id string) (*models.User, error) {
	user := &models.User{}
	if err := db.Where("id = ?", id).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func GetUserByEmail(db *gormw.DB, email string) (*models.User, error) {
	user := &models.User{}
	if err := db.Where("email = ?", email).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func CreateUser(db *gormw.DB, user *models.User) error {
	return db.Create(user).Error
}

// DirectInvitees lists users whose redeemed code belonged to userID,
// newest first. Only one level of the referral tree is surfaced; the
// invited_by column supports deeper traversal should it ever be needed.
func DirectInvitees(db *gormw.DB, userID string) ([]*models.User, error) {
	var users []*models.User
	err := db.
		Where("invited_by = ?", userID).
		Order("created_at DESC").
		Find(&users).Error
	return users, err
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalRegistered int64 `json:"totalRegistered"`
	ActiveCodes     int64 `json:"activeCodes"`
	WaitlistCount   int64 `json:"waitlistCount"`
	TotalReferrals  int64 `json:"totalReferrals"`
}

func GetStats(db *gormw.DB) (*Stats, error) {
	s := &Stats{}

	if err := db.Model(&models.User{}).
		Where("status = ?", models.UserStatusRegistered).
		Count(&s.TotalRegistered).Error; err != nil {
		return nil, err
	}

	var err error
	if s.ActiveCodes, err = CountActiveCodes(db); err != nil {
		return nil, err
	}

	if err := db.Model(&models.WaitlistEntry{}).
		Where("status = ?", models.WaitlistStatusPending).
		Count(&s.WaitlistCount).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.User{}).
		Where("invited_by IS NOT NULL").
		Count(&s.TotalReferrals).Error; err != nil {
		return nil, err
	}

	return s, nil
}
