package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
port: 8080
gin_mode: release
db:
  dsn: ":memory:"
  max_open_conns: 4
api:
  admin_username: admin
  admin_password_hash: "$2a$04$notarealhashnotarealhashnotarealhashnotarea"
  base_url: "https://summit.example.com"
  code_batch_size: 3
email:
  api_key: brevo-key
  sender_email: info@summit.example.com
  sender_name: The Summit
recaptcha:
  secret_key: captcha-secret
  min_score: 0.7
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	cfg := LoadConfig(path)

	assert.Equal(t, uint(8080), cfg.Port)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, ":memory:", cfg.DB.DSN)
	assert.Equal(t, 4, cfg.DB.MaxOpenConns)

	assert.Equal(t, "admin", cfg.API.AdminUsername)
	assert.Equal(t, "https://summit.example.com", cfg.API.BaseURL)
	assert.Equal(t, 3, cfg.API.CodeBatchSize)
	// Defaults applied by validation.
	assert.Equal(t, "SUMMIT", cfg.API.CodePrefix)
	assert.Equal(t, 90, cfg.API.CodeValidityDays)

	assert.Equal(t, "brevo-key", cfg.Email.APIKey)
	assert.Equal(t, "info@summit.example.com", cfg.Email.SenderEmail)
	assert.Equal(t, "captcha-secret", cfg.Recaptcha.SecretKey)
	assert.Equal(t, 0.7, cfg.Recaptcha.MinScore)
}
