package storage

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/models"
)

var (
	ErrWaitlistNotFound   = errors.New("storage: waitlist entry not found")
	ErrAlreadyPromoted    = errors.New("storage: waitlist entry no longer pending")
	ErrPendingEntryExists = errors.New("storage: email already on the waitlist")
)

// revenuePoints is an ascending five-tier scale over the fixed revenue
// bands.
var revenuePoints = map[string]int{
	"$100k-$500k": 10,
	"$500k-$1mi":  20,
	"$1mi-$3mi":   30,
	"$3mi-$5mi":   40,
	"$5mi+":       50,
}

// roleTiers are scanned in descending order, only the highest matching
// tier contributes.
var roleTiers = []struct {
	keywords []string
	points   int
}{
	{[]string{"CEO", "FOUNDER"}, 40},
	{[]string{"CTO", "VP", "PRESIDENT"}, 30},
	{[]string{"DIRECTOR", "HEAD"}, 20},
	{[]string{"MANAGER", "LEAD"}, 10},
}

// PriorityScore is a pure function of (companyRevenue, role) used only for
// waitlist sort order, never for gating.
func PriorityScore(companyRevenue, role string) int {
	score := revenuePoints[companyRevenue]

	roleUpper := strings.ToUpper(role)
	for _, tier := range roleTiers {
		matched := false
		for _, kw := range tier.keywords {
			if strings.Contains(roleUpper, kw) {
				matched = true
				break
			}
		}
		if matched {
			score += tier.points
			break
		}
	}

	return score
}

// SubmitWaitlist stamps the priority score and inserts the entry as
// pending. A pending entry with the same email is rejected; the caller is
// responsible for having checked registered users beforehand.
func SubmitWaitlist(db *gormw.DB, entry *models.WaitlistEntry) error {
	var n int64
	if err := db.Model(&models.WaitlistEntry{}).
		Where("email = ? AND status = ?", entry.Email, models.WaitlistStatusPending).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrPendingEntryExists
	}

	entry.PriorityScore = PriorityScore(entry.CompanyRevenue, entry.Role)
	entry.Status = models.WaitlistStatusPending
	return db.Create(entry).Error
}

// ListPendingWaitlist orders by priority descending, earlier submissions
// winning ties. The admin console promotes from the top of this list.
func ListPendingWaitlist(db *gormw.DB) ([]*models.WaitlistEntry, error) {
	var entries []*models.WaitlistEntry
	err := db.
		Where("status = ?", models.WaitlistStatusPending).
		Order("priority_score DESC, created_at ASC").
		Find(&entries).Error
	return entries, err
}

func GetWaitlistEntry(db *gormw.DB, id string) (*models.WaitlistEntry, error) {
	entry := &models.WaitlistEntry{}
	if err := db.Where("id = ?", id).First(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWaitlistNotFound
		}
		return nil, err
	}
	return entry, nil
}

// PromoteWaitlistEntry flips a pending entry to promoted. Minting the
// accompanying invitation code is the caller's separate step, keeping the
// two failures independently retriable.
func PromoteWaitlistEntry(db *gormw.DB, id string) error {
	return setWaitlistStatus(db, id, models.WaitlistStatusPromoted, true)
}

func RejectWaitlistEntry(db *gormw.DB, id string) error {
	return setWaitlistStatus(db, id, models.WaitlistStatusRejected, false)
}

func setWaitlistStatus(db *gormw.DB, id, status string, stampPromotedAt bool) error {
	updates := map[string]interface{}{"status": status}
	if stampPromotedAt {
		updates["promoted_at"] = time.Now()
	}

	res := db.Model(&models.WaitlistEntry{}).
		Where("id = ? AND status = ?", id, models.WaitlistStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing entry from one that already left pending.
		if _, err := GetWaitlistEntry(db, id); err != nil {
			return err
		}
		return ErrAlreadyPromoted
	}
	return nil
}

func UpdateWaitlistPriority(db *gormw.DB, id string, priorityScore int, adminNotes string) error {
	res := db.Model(&models.WaitlistEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"priority_score": priorityScore,
			"admin_notes":    adminNotes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWaitlistNotFound
	}
	return nil
}
