// Package email sends transactional notifications through the Brevo HTTP
// API and records every attempt in the email_logs audit table.
//
// Delivery is best effort with respect to the flows that trigger it: a
// failed send never rolls registration back. The one exception lives in
// the caller: a failed referral invitation releases the code that was
// reserved for the recipient.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/models"
	"github.com/charleshuang3/invitegate/internal/storage"
)

var (
	logger = log.With().Str("component", "email").Logger()

	ErrNotConfigured = errors.New("email: api key not configured")
	ErrSendFailed    = errors.New("email: delivery failed")
)

const (
	TemplateRegistrationConfirmation = "registration_confirmation"
	TemplateReferralCodes            = "referral_codes"
	TemplateReferralInvitation       = "referral_invitation"
	TemplateWaitlistConfirmation     = "waitlist_confirmation"
	TemplateWaitlistPromotion        = "waitlist_promotion"
)

const defaultEndpoint = "https://api.brevo.com/v3/smtp/email"

// Sender is the notification contract the orchestration layers depend on.
// Implementations must not panic; a non-nil error only means "log it", it
// never propagates as a flow failure.
type Sender interface {
	Send(ctx context.Context, templateType, to string, vars map[string]string) error
}

type Config struct {
	APIKey      string `yaml:"api_key"`
	SenderEmail string `yaml:"sender_email"`
	SenderName  string `yaml:"sender_name"`
	// Endpoint overrides the Brevo API URL, tests point it at a local
	// server.
	Endpoint string `yaml:"endpoint"`
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
}

type BrevoSender struct {
	config *Config
	db     *gormw.DB
	client *http.Client
}

func NewBrevoSender(config *Config, db *gormw.DB) *BrevoSender {
	config.applyDefaults()
	if config.APIKey == "" {
		logger.Warn().Msg("Brevo API key not configured, email delivery disabled")
	}
	return &BrevoSender{
		config: config,
		db:     db,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type brevoRequest struct {
	Sender      brevoParty   `json:"sender"`
	To          []brevoParty `json:"to"`
	Subject     string       `json:"subject"`
	HTMLContent string       `json:"htmlContent"`
}

type brevoParty struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (s *BrevoSender) Send(ctx context.Context, templateType, to string, vars map[string]string) error {
	subject, body, err := renderTemplate(templateType, vars)
	if err != nil {
		s.logAttempt(to, subject, templateType, models.EmailStatusFailed, err.Error())
		return err
	}

	if s.config.APIKey == "" {
		s.logAttempt(to, subject, templateType, models.EmailStatusFailed, "api key not configured")
		return ErrNotConfigured
	}

	payload, err := json.Marshal(&brevoRequest{
		Sender:      brevoParty{Email: s.config.SenderEmail, Name: s.config.SenderName},
		To:          []brevoParty{{Email: to}},
		Subject:     subject,
		HTMLContent: body,
	})
	if err != nil {
		s.logAttempt(to, subject, templateType, models.EmailStatusFailed, err.Error())
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		s.logAttempt(to, subject, templateType, models.EmailStatusFailed, err.Error())
		return err
	}
	req.Header.Set("api-key", s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logAttempt(to, subject, templateType, models.EmailStatusFailed, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("brevo responded %d", resp.StatusCode)
		s.logAttempt(to, subject, templateType, models.EmailStatusFailed, msg)
		return ErrSendFailed
	}

	s.logAttempt(to, subject, templateType, models.EmailStatusSent, "")
	return nil
}

func (s *BrevoSender) logAttempt(to, subject, templateType, status, errMsg string) {
	entry := &models.EmailLog{
		ToEmail:      to,
		FromEmail:    s.config.SenderEmail,
		Subject:      subject,
		TemplateType: templateType,
		Status:       status,
		ErrorMessage: errMsg,
	}
	if err := storage.AppendEmailLog(s.db, entry); err != nil {
		logger.Error().Err(err).Str("to", to).Msg("Failed to append email log")
	}
}
