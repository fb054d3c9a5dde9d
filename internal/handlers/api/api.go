// Package api exposes the registration, waitlist and admin console
// endpoints. Handlers stay thin: bot-mitigation and session checks happen
// here, everything stateful goes through the storage and registration
// packages.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/invitegate/internal/codegen"
	"github.com/charleshuang3/invitegate/internal/email"
	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/recaptcha"
	"github.com/charleshuang3/invitegate/internal/registration"
	"github.com/charleshuang3/invitegate/internal/storage"
)

var (
	logger = log.With().Str("component", "api").Logger()
)

const sessionCookie = "invitegate_session"

// Messages surfaced to callers. Deliberately non-leaking: no internal
// identifiers, no distinction between infrastructure failures.
const (
	msgInvalidCode  = "Invalid or expired invitation code"
	msgEmailTaken   = "Email already registered"
	msgWaitlistDup  = "Email already registered or in waitlist"
	msgNoCodes      = "No invitation codes available"
	msgCaptcha      = "reCAPTCHA verification failed"
	msgTryAgain     = "Something went wrong. Please try again."
	msgUnauthorized = "Unauthorized access"
)

type Config struct {
	AdminUsername string `yaml:"admin_username"`
	// AdminPasswordHash is a bcrypt hash, never the plaintext password.
	AdminPasswordHash string `yaml:"admin_password_hash"`

	// BaseURL is used to build invite and dashboard links in emails.
	BaseURL string `yaml:"base_url"`

	CodePrefix       string `yaml:"code_prefix"`
	CodeBatchSize    int    `yaml:"code_batch_size"`
	CodeValidityDays int    `yaml:"code_validity_days"`
}

func (c *Config) Validate() {
	if c.AdminUsername == "" || c.AdminPasswordHash == "" {
		logger.Fatal().Msg("Admin credentials are missing")
	}
	if c.BaseURL == "" {
		logger.Fatal().Msg("BaseURL is missing")
	}
	if c.CodePrefix == "" {
		c.CodePrefix = codegen.DefaultPrefix
	}
	if c.CodeBatchSize <= 0 {
		c.CodeBatchSize = 5
	}
	if c.CodeValidityDays <= 0 {
		c.CodeValidityDays = 90
	}
}

func (c *Config) codeValidity() time.Duration {
	return time.Duration(c.CodeValidityDays) * 24 * time.Hour
}

type API struct {
	config *Config
	db     *gormw.DB

	gen       *codegen.Generator
	registrar *registration.Registrar
	sender    email.Sender
	verifier  recaptcha.Verifier
	sessions  *storage.SessionStorage
}

func New(config *Config, db *gormw.DB, sender email.Sender, verifier recaptcha.Verifier) *API {
	config.Validate()

	gen := codegen.New(config.CodePrefix)
	registrar := registration.New(db, gen, sender, config.CodeBatchSize, config.codeValidity())
	registrar.DashboardURL = config.BaseURL + "/dashboard"

	return &API{
		config:    config,
		db:        db,
		gen:       gen,
		registrar: registrar,
		sender:    sender,
		verifier:  verifier,
		sessions:  storage.NewSessionStorage(),
	}
}

func (a *API) RegisterHandlers(rg *gin.RouterGroup) {
	apiRoutes := rg.Group("/api")
	{
		apiRoutes.POST("/validate-code", a.handleValidateCode)
		apiRoutes.POST("/register", a.handleRegister)
		apiRoutes.POST("/waitlist", a.handleWaitlist)

		apiRoutes.POST("/send-invitation", a.userAuth(), a.handleSendInvitation)
		apiRoutes.GET("/me", a.userAuth(), a.handleMe)
	}

	adminRoutes := apiRoutes.Group("/admin")
	{
		adminRoutes.POST("/login", a.handleAdminLogin)
		adminRoutes.POST("/logout", a.handleAdminLogout)
		adminRoutes.GET("/me", a.handleAdminMe)

		authed := adminRoutes.Group("/", a.adminAuth())
		authed.GET("/stats", a.handleAdminStats)
		authed.GET("/waitlist", a.handleAdminWaitlist)
		authed.POST("/waitlist/:id/promote", a.handleAdminPromote)
		authed.POST("/waitlist/:id/reject", a.handleAdminReject)
		authed.POST("/waitlist/:id/priority", a.handleAdminUpdatePriority)
		authed.POST("/codes/generate", a.handleAdminGenerateCodes)
		authed.GET("/codes", a.handleAdminCodes)
	}
}

// currentSession returns the session for the request cookie, if any.
func (a *API) currentSession(c *gin.Context) (*storage.Session, bool) {
	token, err := c.Cookie(sessionCookie)
	if err != nil || token == "" {
		return nil, false
	}
	return a.sessions.Get(token)
}

func (a *API) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int((24 * time.Hour).Seconds()), "/", "", false, true)
}

func (a *API) clearSessionCookie(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
}

// userAuth admits requests carrying a user session.
func (a *API) userAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := a.currentSession(c)
		if !ok || sess.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.Set("userID", sess.UserID)
		c.Next()
	}
}

// adminAuth admits requests carrying an admin session.
func (a *API) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := a.currentSession(c)
		if !ok || !sess.IsAdmin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgUnauthorized})
			return
		}
		c.Next()
	}
}

// serverError logs the real cause and responds with the generic retry
// message.
func serverError(c *gin.Context, err error, msg string) {
	logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msgTryAgain})
}
