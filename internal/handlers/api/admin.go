package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/charleshuang3/invitegate/internal/email"
	"github.com/charleshuang3/invitegate/internal/models"
	"github.com/charleshuang3/invitegate/internal/storage"
)

type adminLoginParams struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) handleAdminLogin(c *gin.Context) {
	params := &adminLoginParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing credentials"})
		return
	}

	if params.Username != a.config.AdminUsername ||
		bcrypt.CompareHashAndPassword([]byte(a.config.AdminPasswordHash), []byte(params.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin credentials"})
		return
	}

	token := a.sessions.Create(&storage.Session{IsAdmin: true})
	a.setSessionCookie(c, token)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Admin authenticated"})
}

func (a *API) handleAdminLogout(c *gin.Context) {
	if token, err := c.Cookie(sessionCookie); err == nil && token != "" {
		a.sessions.Delete(token)
	}
	a.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

func (a *API) handleAdminMe(c *gin.Context) {
	sess, ok := a.currentSession(c)
	if !ok || !sess.IsAdmin {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated as admin"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"isAdmin": true})
}

func (a *API) handleAdminStats(c *gin.Context) {
	stats, err := storage.GetStats(a.db)
	if err != nil {
		serverError(c, err, "Failed to fetch stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) handleAdminWaitlist(c *gin.Context) {
	entries, err := storage.ListPendingWaitlist(a.db)
	if err != nil {
		serverError(c, err, "Failed to fetch waitlist")
		return
	}
	c.JSON(http.StatusOK, entries)
}

// handleAdminPromote mints one admin-sentinel code for the entry, then
// flips it to promoted. Minting first keeps a promote failure retriable
// without the person ever holding a dangling promise.
func (a *API) handleAdminPromote(c *gin.Context) {
	id := c.Param("id")

	entry, err := storage.GetWaitlistEntry(a.db, id)
	if err != nil {
		if errors.Is(err, storage.ErrWaitlistNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Waitlist entry not found"})
			return
		}
		serverError(c, err, "Failed to load waitlist entry")
		return
	}
	if entry.Status != models.WaitlistStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Waitlist entry no longer pending"})
		return
	}

	codes, err := storage.CreateCodeBatch(a.db, a.gen, models.AdminSentinelID, 1, a.config.codeValidity())
	if err != nil {
		serverError(c, err, "Failed to generate invitation code")
		return
	}
	code := codes[0]

	if err := storage.PromoteWaitlistEntry(a.db, id); err != nil {
		if errors.Is(err, storage.ErrAlreadyPromoted) {
			c.JSON(http.StatusConflict, gin.H{"error": "Waitlist entry no longer pending"})
			return
		}
		serverError(c, err, "Failed to promote waitlist entry")
		return
	}

	go func() {
		err := a.sender.Send(context.Background(), email.TemplateWaitlistPromotion, entry.Email, map[string]string{
			"firstName":       entry.FirstName,
			"inviteCode":      code.Code,
			"registrationUrl": a.config.BaseURL + "/register?code=" + code.Code,
		})
		if err != nil {
			logger.Error().Err(err).Str("email", entry.Email).Msg("Failed to send promotion email")
		}
	}()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User promoted from waitlist",
		"code":    code.Code,
	})
}

func (a *API) handleAdminReject(c *gin.Context) {
	id := c.Param("id")

	if err := storage.RejectWaitlistEntry(a.db, id); err != nil {
		switch {
		case errors.Is(err, storage.ErrWaitlistNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Waitlist entry not found"})
		case errors.Is(err, storage.ErrAlreadyPromoted):
			c.JSON(http.StatusConflict, gin.H{"error": "Waitlist entry no longer pending"})
		default:
			serverError(c, err, "Failed to reject waitlist entry")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Waitlist entry rejected"})
}

type updatePriorityParams struct {
	PriorityScore int    `json:"priorityScore" binding:"required"`
	AdminNotes    string `json:"adminNotes"`
}

// handleAdminUpdatePriority lets an admin override the derived score, e.g.
// for a VIP referral.
func (a *API) handleAdminUpdatePriority(c *gin.Context) {
	params := &updatePriorityParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Priority score is required"})
		return
	}

	if err := storage.UpdateWaitlistPriority(a.db, c.Param("id"), params.PriorityScore, params.AdminNotes); err != nil {
		if errors.Is(err, storage.ErrWaitlistNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Waitlist entry not found"})
			return
		}
		serverError(c, err, "Failed to update waitlist priority")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Priority updated"})
}

type generateCodesParams struct {
	UserID string `json:"userId" binding:"required"`
	Count  int    `json:"count"`
}

func (a *API) handleAdminGenerateCodes(c *gin.Context) {
	params := &generateCodesParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID is required"})
		return
	}
	if params.Count <= 0 {
		params.Count = a.config.CodeBatchSize
	}

	codes, err := storage.CreateCodeBatch(a.db, a.gen, params.UserID, params.Count, a.config.codeValidity())
	if err != nil {
		serverError(c, err, "Failed to generate codes")
		return
	}

	codeStrs := make([]string, 0, len(codes))
	for _, code := range codes {
		codeStrs = append(codeStrs, code.Code)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "codes": codeStrs})
}

func (a *API) handleAdminCodes(c *gin.Context) {
	codes, err := storage.ListAllCodes(a.db)
	if err != nil {
		serverError(c, err, "Failed to fetch codes")
		return
	}
	c.JSON(http.StatusOK, codes)
}
