// Package registration composes code validation, user creation, code
// consumption and fresh-code issuance into one registration attempt.
package registration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/charleshuang3/invitegate/internal/codegen"
	"github.com/charleshuang3/invitegate/internal/email"
	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/models"
	"github.com/charleshuang3/invitegate/internal/storage"
)

var (
	logger = log.With().Str("component", "registration").Logger()

	// ErrInvalidCode covers bad, expired and concurrently consumed codes;
	// callers surface all three the same way.
	ErrInvalidCode = errors.New("registration: invalid or expired invitation code")
	ErrEmailTaken  = errors.New("registration: email already registered")
)

type Request struct {
	InviteCode     string
	FirstName      string
	LastName       string
	Email          string
	Company        string
	CompanyRevenue string
	Role           string
	CompanyWebsite string
}

type Result struct {
	User  *models.User
	Codes []*models.InvitationCode
}

type Registrar struct {
	db     *gormw.DB
	gen    *codegen.Generator
	sender email.Sender

	batchSize    int
	codeValidity time.Duration

	// DashboardURL lands in the confirmation emails.
	DashboardURL string
}

func New(db *gormw.DB, gen *codegen.Generator, sender email.Sender, batchSize int, codeValidity time.Duration) *Registrar {
	return &Registrar{
		db:           db,
		gen:          gen,
		sender:       sender,
		batchSize:    batchSize,
		codeValidity: codeValidity,
	}
}

// Register runs one registration attempt.
//
// User creation, code consumption and fresh-code issuance share a single
// transaction: losing a consume race to a concurrent request rolls the new
// user back, so a double-spent code never leaves a registered user behind.
// The notification sends afterwards are fire and forget.
func (r *Registrar) Register(req *Request) (*Result, error) {
	vCode, err := storage.ValidateCode(r.db, req.InviteCode)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	if _, err := storage.GetUserByEmail(r.db, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var invitedBy *string
	if vCode.AssignedToUserID != models.AdminSentinelID {
		owner := vCode.AssignedToUserID
		invitedBy = &owner
	}

	res := &Result{}
	err = r.db.Transaction(func(tx *gorm.DB) error {
		txdb := gormw.Wrap(tx)

		user := &models.User{
			Email:          req.Email,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Company:        req.Company,
			CompanyRevenue: req.CompanyRevenue,
			Role:           req.Role,
			CompanyWebsite: req.CompanyWebsite,
			Status:         models.UserStatusRegistered,
			InvitedBy:      invitedBy,
		}
		if err := storage.CreateUser(txdb, user); err != nil {
			return err
		}

		if err := storage.ConsumeCode(txdb, req.InviteCode, user.ID); err != nil {
			return err
		}

		codes, err := storage.CreateCodeBatch(txdb, r.gen, user.ID, r.batchSize, r.codeValidity)
		if err != nil {
			return err
		}

		res.User = user
		res.Codes = codes
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrCodeAlreadyUsed) {
			// Lost the race between validate and consume.
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	go r.notify(res)

	return res, nil
}

func (r *Registrar) notify(res *Result) {
	ctx := context.Background()

	err := r.sender.Send(ctx, email.TemplateRegistrationConfirmation, res.User.Email, map[string]string{
		"firstName":    res.User.FirstName,
		"lastName":     res.User.LastName,
		"company":      res.User.Company,
		"email":        res.User.Email,
		"dashboardUrl": r.DashboardURL,
	})
	if err != nil {
		logger.Error().Err(err).Str("email", res.User.Email).Msg("Failed to send registration confirmation")
	}

	codeStrs := make([]string, 0, len(res.Codes))
	for _, c := range res.Codes {
		codeStrs = append(codeStrs, c.Code)
	}

	err = r.sender.Send(ctx, email.TemplateReferralCodes, res.User.Email, map[string]string{
		"firstName":    res.User.FirstName,
		"codes":        strings.Join(codeStrs, ", "),
		"dashboardUrl": r.DashboardURL,
	})
	if err != nil {
		logger.Error().Err(err).Str("email", res.User.Email).Msg("Failed to send referral codes email")
	}
}
