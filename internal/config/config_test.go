package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "argond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `database:
  path: /tmp/argon.db

auth:
  jwt_secret: super-secret
  token_ttl: 24h

messages:
  default_ttl: 48h
  sweep_interval: 30s

engine:
  enabled: true

logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/argon.db", cfg.Database.Path)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 48*time.Hour, cfg.Messages.DefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.Messages.SweepInterval)
	assert.True(t, cfg.Engine.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `database:
  path: /tmp/argon.db
auth:
  jwt_secret: super-secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TokenTTL)
	assert.Equal(t, DefaultMessageTTL, cfg.Messages.DefaultTTL)
	assert.Equal(t, DefaultSweepInterval, cfg.Messages.SweepInterval)
	assert.False(t, cfg.Engine.Enabled)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ARGON_TEST_DB", "/data/argon.db")
	t.Setenv("ARGON_TEST_SECRET", "from-env")

	path := writeConfig(t, `database:
  path: ${ARGON_TEST_DB}
auth:
  jwt_secret: ${ARGON_TEST_SECRET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/argon.db", cfg.Database.Path)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `database:
  path: /tmp/argon.db
auth:
  jwt_secret: super-secret
  token_ttl: not-a-duration
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_ttl")
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing database path",
			content: `auth:
  jwt_secret: super-secret
`,
			wantErr: "database.path",
		},
		{
			name: "missing jwt secret",
			content: `database:
  path: /tmp/argon.db
`,
			wantErr: "jwt_secret",
		},
		{
			name: "bad logging format",
			content: `database:
  path: /tmp/argon.db
auth:
  jwt_secret: super-secret
logging:
  format: xml
`,
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
