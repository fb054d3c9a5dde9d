package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/badoux/checkmail"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charleshuang3/invitegate/internal/email"
	"github.com/charleshuang3/invitegate/internal/models"
	"github.com/charleshuang3/invitegate/internal/registration"
	"github.com/charleshuang3/invitegate/internal/storage"
)

// verifyCaptcha gates a handler on the bot-mitigation check. Returns false
// after responding when the token does not pass.
func (a *API) verifyCaptcha(c *gin.Context, token, action string) bool {
	res, err := a.verifier.Verify(c.Request.Context(), token, action)
	if err != nil {
		serverError(c, err, "reCAPTCHA verification error")
		return false
	}
	if !res.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgCaptcha})
		return false
	}
	return true
}

type validateCodeParams struct {
	Code string `json:"code" binding:"required"`
}

func (a *API) handleValidateCode(c *gin.Context) {
	params := &validateCodeParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid code format"})
		return
	}

	_, err := storage.ValidateCode(a.db, params.Code)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": msgInvalidCode})
			return
		}
		serverError(c, err, "Failed to validate code")
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "message": "Code is valid"})
}

type registerParams struct {
	RecaptchaToken string `json:"recaptchaToken" binding:"required"`
	InviteCode     string `json:"inviteCode" binding:"required,min=6"`
	FirstName      string `json:"firstName" binding:"required"`
	LastName       string `json:"lastName" binding:"required"`
	Email          string `json:"email" binding:"required"`
	Company        string `json:"company" binding:"required"`
	CompanyRevenue string `json:"companyRevenue" binding:"required,oneof=$100k-$500k $500k-$1mi $1mi-$3mi $3mi-$5mi $5mi+"`
	Role           string `json:"role" binding:"required"`
	CompanyWebsite string `json:"companyWebsite"`
}

func (a *API) handleRegister(c *gin.Context) {
	params := &registerParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid registration fields"})
		return
	}

	if !a.verifyCaptcha(c, params.RecaptchaToken, "register") {
		return
	}

	if err := checkmail.ValidateFormat(params.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
		return
	}

	res, err := a.registrar.Register(&registration.Request{
		InviteCode:     params.InviteCode,
		FirstName:      params.FirstName,
		LastName:       params.LastName,
		Email:          params.Email,
		Company:        params.Company,
		CompanyRevenue: params.CompanyRevenue,
		Role:           params.Role,
		CompanyWebsite: params.CompanyWebsite,
	})
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidCode})
		case errors.Is(err, registration.ErrEmailTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": msgEmailTaken})
		default:
			serverError(c, err, "Registration failed")
		}
		return
	}

	token := a.sessions.Create(&storage.Session{UserID: res.User.ID})
	a.setSessionCookie(c, token)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Registration successful",
		"userId":  res.User.ID,
	})
}

type waitlistParams struct {
	RecaptchaToken string `json:"recaptchaToken" binding:"required"`
	FirstName      string `json:"firstName" binding:"required"`
	LastName       string `json:"lastName" binding:"required"`
	Email          string `json:"email" binding:"required"`
	Company        string `json:"company" binding:"required"`
	CompanyRevenue string `json:"companyRevenue" binding:"required,oneof=$100k-$500k $500k-$1mi $1mi-$3mi $3mi-$5mi $5mi+"`
	Role           string `json:"role" binding:"required"`
	CompanyWebsite string `json:"companyWebsite"`
	Motivation     string `json:"motivation" binding:"required,min=10"`
}

func (a *API) handleWaitlist(c *gin.Context) {
	params := &waitlistParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid waitlist fields"})
		return
	}

	if !a.verifyCaptcha(c, params.RecaptchaToken, "waitlist") {
		return
	}

	if err := checkmail.ValidateFormat(params.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
		return
	}

	// An email that already registered must not enter the waitlist. The
	// store only guards against duplicate pending entries.
	if _, err := storage.GetUserByEmail(a.db, params.Email); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgWaitlistDup})
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		serverError(c, err, "Failed to check existing user")
		return
	}

	entry := &models.WaitlistEntry{
		Email:          params.Email,
		FirstName:      params.FirstName,
		LastName:       params.LastName,
		Company:        params.Company,
		CompanyRevenue: params.CompanyRevenue,
		Role:           params.Role,
		CompanyWebsite: params.CompanyWebsite,
		Motivation:     params.Motivation,
	}
	if err := storage.SubmitWaitlist(a.db, entry); err != nil {
		if errors.Is(err, storage.ErrPendingEntryExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgWaitlistDup})
			return
		}
		serverError(c, err, "Failed to add to waitlist")
		return
	}

	go func() {
		err := a.sender.Send(context.Background(), email.TemplateWaitlistConfirmation, entry.Email, map[string]string{
			"firstName": entry.FirstName,
		})
		if err != nil {
			logger.Error().Err(err).Str("email", entry.Email).Msg("Failed to send waitlist confirmation")
		}
	}()

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Successfully added to waitlist",
		"priorityScore": entry.PriorityScore,
	})
}

type sendInvitationParams struct {
	Email           string `json:"email" binding:"required"`
	PersonalMessage string `json:"personalMessage"`
}

func (a *API) handleSendInvitation(c *gin.Context) {
	params := &sendInvitationParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	if err := checkmail.ValidateFormat(params.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
		return
	}

	user, err := storage.GetUserByID(a.db, c.GetString("userID"))
	if err != nil {
		serverError(c, err, "Failed to load user")
		return
	}

	code, err := storage.ReserveCode(a.db, user.ID, params.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNoCodeAvailable) {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgNoCodes})
			return
		}
		serverError(c, err, "Failed to reserve invitation code")
		return
	}

	err = a.sender.Send(c.Request.Context(), email.TemplateReferralInvitation, params.Email, map[string]string{
		"referrerName":    user.FirstName + " " + user.LastName,
		"referrerCompany": user.Company,
		"inviteCode":      code.Code,
		"inviteUrl":       a.config.BaseURL + "/?code=" + code.Code,
		"personalMessage": params.PersonalMessage,
	})
	if err != nil {
		// Return the reserved code to the pool instead of silently
		// losing it.
		if uerr := storage.UnreserveCode(a.db, code.Code); uerr != nil {
			logger.Error().Err(uerr).Str("code", code.Code).Msg("Failed to unreserve code after send failure")
		}
		serverError(c, err, "Failed to send invitation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Invitation sent successfully",
		"sentCode": code.Code,
		"sentTo":   params.Email,
	})
}

func (a *API) handleMe(c *gin.Context) {
	user, err := storage.GetUserByID(a.db, c.GetString("userID"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		serverError(c, err, "Failed to load user")
		return
	}

	codes, err := storage.ListCodesByOwner(a.db, user.ID)
	if err != nil {
		serverError(c, err, "Failed to load invitation codes")
		return
	}

	referrals, err := storage.DirectInvitees(a.db, user.ID)
	if err != nil {
		serverError(c, err, "Failed to load referrals")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"inviteCodes": codes,
		"referrals":   referrals,
	})
}
