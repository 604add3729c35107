package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testAPIKey = "sk-test-0123456789abcdef"
)

// setRequired sets the variables without defaults.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("OPENAI_API_KEY", testAPIKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "data/jokebox.db", cfg.DatabaseURL)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAIModel)
	assert.Equal(t, 30*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, 2*time.Minute, cfg.PendingTimeout)
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 10.0, cfg.GenerateRatePerMinute)
	assert.Equal(t, 3, cfg.GenerateBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.GitHubEnabled())
	assert.False(t, cfg.ElectricEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8081")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "postgres://app@localhost/jokes")
	t.Setenv("SESSION_TTL", "24h")
	t.Setenv("CORS_ORIGIN", "https://a.example.com, https://b.example.com")
	t.Setenv("ELECTRIC_URL", "http://electric:3000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://app@localhost/jokes", cfg.DatabaseURL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.ElectricEnabled())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "JWT_SECRET=" + testSecret + "\nOPENAI_API_KEY=" + testAPIKey + "\nPORT=9000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, testSecret, cfg.JWTSecret)

	// the environment wins over the file
	t.Setenv("PORT", "9001")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Port)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	setRequired(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"missing api key", map[string]string{"OPENAI_API_KEY": ""}, "OPENAI_API_KEY"},
		{"unknown environment", map[string]string{"ENVIRONMENT": "staging"}, "ENVIRONMENT"},
		{"github id without secret", map[string]string{"GITHUB_CLIENT_ID": "abc"}, "GITHUB_CLIENT_SECRET"},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"zero burst", map[string]string{"GENERATE_BURST": "0"}, "GENERATE_BURST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDatabaseURL_NeedsNoSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app@db/jokes")

	dsn, err := LoadDatabaseURL("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@db/jokes", dsn)
}

func TestLoadDatabaseURL_Default(t *testing.T) {
	dsn, err := LoadDatabaseURL(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "data/jokebox.db", dsn)
}
