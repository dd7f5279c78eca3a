package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gemini", cfg.Recognition.Backend)
	assert.Equal(t, float32(0), cfg.Recognition.Temperature)
	assert.Equal(t, float32(1), cfg.Recognition.TopP)
	assert.Equal(t, int32(8192), cfg.Recognition.MaxOutputTokens)
	assert.Equal(t, 0, cfg.Retry.Recognition.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Retry.Recognition.Base)
	assert.Equal(t, 60*time.Second, cfg.Retry.Recognition.Cap)
	assert.Equal(t, 3, cfg.Retry.Download.MaxAttempts)
	assert.Equal(t, 300, cfg.Render.DPI)
	assert.Equal(t, "file", cfg.Cache.Driver)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verbatim.yaml")
	yamlContent := `
recognition:
  backend: openrouter
  model: google/gemini-2.5-flash
render:
  dpi: 200
cache:
  driver: sqlite
  sqlite:
    path: /tmp/units.db
pipeline:
  workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("RENDER_DPI", "150")
	t.Setenv("OUTPUT_DIR", "/data/out")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Recognition.Backend)
	assert.Equal(t, "or-key", cfg.Recognition.APIKey)
	assert.Equal(t, "google/gemini-2.5-flash", cfg.Recognition.Model)
	assert.Equal(t, 150, cfg.Render.DPI, "environment wins over the file")
	assert.Equal(t, "/data/out", cfg.Output.Dir)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 3, cfg.Retry.Download.MaxAttempts, "unset keys keep their defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoad_DatabaseAndRedisURLSelectDriver(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_URL", "postgres://u:p@localhost/verbatim?sslmode=disable")
		cfg := DefaultConfig()
		require.NoError(t, applyEnvOverrides(cfg))
		assert.Equal(t, "postgres", cfg.Cache.Driver)
		assert.Equal(t, "postgres://u:p@localhost/verbatim?sslmode=disable", cfg.Cache.Postgres.DSN)
	})

	t.Run("redis", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REDIS_URL", "redis://cache:6379")
		cfg := DefaultConfig()
		require.NoError(t, applyEnvOverrides(cfg))
		assert.Equal(t, "redis", cfg.Cache.Driver)
		assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestLoad_InvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("PIPELINE_WORKERS", "many")
	cfg := DefaultConfig()
	err := applyEnvOverrides(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PIPELINE_WORKERS")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Recognition.APIKey = "key"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing credentials", func(c *Config) { c.Recognition.APIKey = "" }, "GEMINI_API_KEY"},
		{"vertex project is enough", func(c *Config) { c.Recognition.APIKey = ""; c.Recognition.Project = "proj" }, ""},
		{"openrouter without key", func(c *Config) { c.Recognition.Backend = "openrouter"; c.Recognition.APIKey = "" }, "OPENROUTER_API_KEY"},
		{"unknown backend", func(c *Config) { c.Recognition.Backend = "tesseract" }, "invalid recognition backend"},
		{"unbounded download", func(c *Config) { c.Retry.Download.MaxAttempts = 0 }, "download retry must be bounded"},
		{"dpi too low", func(c *Config) { c.Render.DPI = 10 }, "render dpi"},
		{"unknown cache", func(c *Config) { c.Cache.Driver = "memcached" }, "invalid cache driver"},
		{"postgres without dsn", func(c *Config) { c.Cache.Driver = "postgres" }, "DATABASE_URL"},
		{"github without repo", func(c *Config) { c.GitHub.Enabled = true; c.GitHub.Owner = "o" }, "github owner and repo"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUsesVertex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recognition.Project = "proj"
	assert.True(t, cfg.Recognition.UsesVertex())

	cfg.Recognition.APIKey = "key"
	assert.False(t, cfg.Recognition.UsesVertex())
}

func TestValidatePrompts(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorContains(t, cfg.ValidatePrompts(), "PROMPT_FILE or PROMPT_NAME not set")

	path := filepath.Join(t.TempDir(), "prompts.txt")
	require.NoError(t, os.WriteFile(path, []byte("### PROMPT: verbatim\nx\n=== END PROMPT ==="), 0o644))
	cfg.Prompts.File = path
	cfg.Prompts.Name = "verbatim"
	assert.NoError(t, cfg.ValidatePrompts())
}

// clearEnv blanks every override so the developer's shell cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RECOGNITION_BACKEND", "GEMINI_API_KEY", "OPENROUTER_API_KEY", "LLM_MODEL",
		"GOOGLE_CLOUD_PROJECT", "GOOGLE_CLOUD_LOCATION", "RENDER_DPI", "INPUT_DIR",
		"OUTPUT_DIR", "TRANSCRIPTS_DIR", "PROMPT_FILE", "PROMPT_NAME", "CACHE_DRIVER",
		"DATABASE_URL", "REDIS_URL", "GITHUB_OWNER", "GITHUB_REPO", "GITHUB_BRANCH",
		"GITHUB_TOKEN", "PIPELINE_WORKERS", "LOG_LEVEL", "LOG_FORMAT", "LOG_DIR",
	} {
		t.Setenv(key, "")
	}
}
