package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DUPLICATE_THRESHOLD", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "0_", cfg.DBTablePrefix)
	assert.Equal(t, 0.9, cfg.DuplicateThreshold)
	assert.Equal(t, 90*24*time.Hour, cfg.CleanupAge)
}

func TestLoad_MySQLRequiresCredentials(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_NAME", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DB_USER", "fa")
	t.Setenv("DB_NAME", "frontaccounting")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3306, cfg.DBPort)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "DB_DRIVER", "postgres"},
		{"threshold above one", "DUPLICATE_THRESHOLD", "1.5"},
		{"unknown log level", "LOG_LEVEL", "verbose"},
		{"gmail user not an address", "GMAIL_USER", "purchasing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConfig_RequireGmail(t *testing.T) {
	cfg := &Config{}
	assert.EqualError(t, cfg.RequireGmail(), "GOOGLE_SERVICE_ACCOUNT_KEY is required")

	cfg.GoogleServiceAccountKey = "key.json"
	cfg.GmailUser = "buyer@example.com"
	assert.NoError(t, cfg.RequireGmail())
}
