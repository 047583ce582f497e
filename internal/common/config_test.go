package common

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "BATCH_CONCURRENCY", "JOB_TRACKER_CAP", "CORS_ORIGINS", "LLM_TIMEOUT", "STORAGE_BACKEND"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()

	assert.Equal(t, ":8000", cfg.Server.HTTPAddr)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
	assert.Equal(t, 100, cfg.Batch.TrackerCap)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "fs", cfg.Storage.Backend)
	assert.Len(t, cfg.Server.CORSOrigins, 2)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("BATCH_CONCURRENCY", "5")
	t.Setenv("DB_INMEM", "true")
	t.Setenv("LLM_TIMEOUT", "2s")
	t.Setenv("LLM_TEMPERATURE", "0.1")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("JOB_TRACKER_CAP", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, 5, cfg.Batch.Concurrency)
	assert.True(t, cfg.Database.InMemory)
	assert.Equal(t, 2*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 100, cfg.Batch.TrackerCap)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{InMemory: true},
			Server:   ServerConfig{HTTPAddr: ":0"},
			Storage:  StorageConfig{Backend: "fs", Dir: "/tmp/x"},
			Batch:    BatchConfig{Concurrency: 3, TrackerCap: 100},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no database", func(c *Config) { c.Database.InMemory = false }},
		{"no http addr", func(c *Config) { c.Server.HTTPAddr = "" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }},
		{"zero concurrency", func(c *Config) { c.Batch.Concurrency = 0 }},
		{"zero tracker", func(c *Config) { c.Batch.TrackerCap = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLoadProviders_FromCredentials(t *testing.T) {
	cfg := &Config{
		LLM: LLMConfig{GroqAPIKey: "g", AnthropicAPIKey: "a", Temperature: 0.7, MaxTokens: 512},
		AWS: AWSConfig{Enabled: false},
	}
	got, err := LoadProviders(cfg)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "groq", got[0].Type)
	assert.Equal(t, "anthropic", got[1].Type)
	assert.Equal(t, 512, got[1].MaxTokens)
}

func TestLoadProviders_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	body := `providers:
  - type: claude
    api_key_env: APE_TEST_KEY
    max_tokens: 100
  - type: aws
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("APE_TEST_KEY", "secret")

	cfg := &Config{
		LLM: LLMConfig{ProvidersFile: path, Temperature: 0.3, MaxTokens: 2048},
		AWS: AWSConfig{Region: "eu-west-1"},
	}
	got, err := LoadProviders(cfg)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "anthropic", got[0].Type)
	assert.Equal(t, "secret", got[0].APIKey)
	assert.Equal(t, 100, got[0].MaxTokens)
	assert.Equal(t, "bedrock", got[1].Type)
	assert.Equal(t, "eu-west-1", got[1].Region)
	assert.InDelta(t, 0.3, got[1].Temperature, 1e-6)
}

func TestLoadProviders_UnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"providers":[{"type":"mystery"}]}`), 0o600))

	_, err := LoadProviders(&Config{LLM: LLMConfig{ProvidersFile: path}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
