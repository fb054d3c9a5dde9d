package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	gormlog "gorm.io/gorm/logger"

	"github.com/charleshuang3/invitegate/internal/gormw"
	"github.com/charleshuang3/invitegate/internal/models"
	"github.com/charleshuang3/invitegate/internal/recaptcha"
	"github.com/charleshuang3/invitegate/internal/storage"
)

const (
	testAdminUser = "admin"
	testAdminPass = "correct-horse"
)

type sentMail struct {
	templateType string
	to           string
	vars         map[string]string
}

type fakeSender struct {
	mu           sync.Mutex
	sent         []sentMail
	failTemplate string
}

func (f *fakeSender) Send(_ context.Context, templateType, to string, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if templateType == f.failTemplate {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, sentMail{templateType, to, vars})
	return nil
}

func (f *fakeSender) sentTo(templateType string) []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMail
	for _, m := range f.sent {
		if m.templateType == templateType {
			out = append(out, m)
		}
	}
	return out
}

// fakeVerifier passes every token except "bad-token".
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token, _ string) (*recaptcha.Result, error) {
	if token == "bad-token" {
		return &recaptcha.Result{Valid: false}, nil
	}
	return &recaptcha.Result{Valid: true, Score: 0.9}, nil
}

func setupTestAPI(t *testing.T) (*API, *gormw.DB, *gin.Engine, *fakeSender) {
	t.Helper()

	db, err := gormw.Open(&gormw.Config{
		MaxOpenConns: 1,
		LogLevel:     gormlog.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPass), bcrypt.MinCost)
	require.NoError(t, err)

	sender := &fakeSender{}
	a := New(&Config{
		AdminUsername:     testAdminUser,
		AdminPasswordHash: string(hash),
		BaseURL:           "http://localhost",
	}, db, sender, fakeVerifier{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	a.RegisterHandlers(router.Group("/"))

	return a, db, router, sender
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func jsonUnmarshal(rec *httptest.ResponseRecorder, out interface{}) error {
	return json.Unmarshal(rec.Body.Bytes(), out)
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

// seedInviter creates a registered user owning one valid code.
func seedInviter(t *testing.T, db *gormw.DB) (*models.User, *models.InvitationCode) {
	t.Helper()

	inviter := &models.User{
		Email:     "inviter@example.com",
		FirstName: "Iris",
		LastName:  "Inviter",
		Company:   "Acme",
		Status:    models.UserStatusRegistered,
	}
	require.NoError(t, storage.CreateUser(db, inviter))

	expires := time.Now().Add(24 * time.Hour)
	code := &models.InvitationCode{
		Code:             "SUMMITAAA111",
		AssignedToUserID: inviter.ID,
		ExpiresAt:        &expires,
	}
	require.NoError(t, db.Create(code).Error)
	return inviter, code
}

// userCookie builds a logged-in user session cookie directly.
func userCookie(a *API, userID string) *http.Cookie {
	token := a.sessions.Create(&storage.Session{UserID: userID})
	return &http.Cookie{Name: sessionCookie, Value: token}
}

func adminLogin(t *testing.T, router *gin.Engine) *http.Cookie {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/admin/login", gin.H{
		"username": testAdminUser,
		"password": testAdminPass,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	return sessionCookieFrom(t, rec)
}

func registerBody(code, email string) gin.H {
	return gin.H{
		"recaptchaToken": "good-token",
		"inviteCode":     code,
		"firstName":      "Ada",
		"lastName":       "Lovelace",
		"email":          email,
		"company":        "Analytical Engines",
		"companyRevenue": "$5mi+",
		"role":           "Founder",
	}
}

func waitlistBody(email string) gin.H {
	return gin.H{
		"recaptchaToken": "good-token",
		"firstName":      "Ada",
		"lastName":       "Lovelace",
		"email":          email,
		"company":        "Analytical Engines",
		"companyRevenue": "$5mi+",
		"role":           "Founder",
		"motivation":     "Really keen to attend this event",
	}
}
