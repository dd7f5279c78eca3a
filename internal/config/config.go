// Package config provides configuration loading for verbatim.
// Supports YAML files, .env files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a run.
type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Retry       RetryConfig       `yaml:"retry"`
	Render      RenderConfig      `yaml:"render"`
	Input       InputConfig       `yaml:"input"`
	Output      OutputConfig      `yaml:"output"`
	GitHub      GitHubConfig      `yaml:"github"`
	Media       MediaConfig       `yaml:"media"`
	Prompts     PromptConfig      `yaml:"prompts"`
	Cache       CacheConfig       `yaml:"cache"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Log         LogConfig         `yaml:"log"`
}

// RecognitionConfig holds settings for the remote inference service.
type RecognitionConfig struct {
	Backend           string        `yaml:"backend"` // gemini or openrouter
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	Project           string        `yaml:"project"`  // Vertex AI only
	Location          string        `yaml:"location"` // Vertex AI only
	BaseURL           string        `yaml:"base_url"`
	Temperature       float32       `yaml:"temperature"`
	TopP              float32       `yaml:"top_p"`
	MaxOutputTokens   int32         `yaml:"max_output_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // 0 disables pacing
}

// UsesVertex reports whether the Gemini backend should go through Vertex AI.
func (r RecognitionConfig) UsesVertex() bool {
	return r.Backend == "gemini" && r.APIKey == "" && r.Project != ""
}

// RetryConfig holds the two independently configurable retry policies.
type RetryConfig struct {
	Recognition BackoffConfig `yaml:"recognition"`
	Download    BackoffConfig `yaml:"download"`
}

// BackoffConfig describes one retry policy. MaxAttempts 0 means unbounded.
type BackoffConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Base        time.Duration `yaml:"base"`
	Cap         time.Duration `yaml:"cap"`
}

// RenderConfig holds PDF rasterization settings.
type RenderConfig struct {
	DPI     int `yaml:"dpi"`
	MaxEdge int `yaml:"max_edge"` // pixels, 0 keeps the native size
}

// InputConfig holds local discovery settings.
type InputConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// OutputConfig holds output and cache root settings.
type OutputConfig struct {
	Dir            string `yaml:"dir"`
	TranscriptsDir string `yaml:"transcripts_dir"`
	ArchiveDir     string `yaml:"archive_dir"`
}

// GitHubConfig holds settings for pre-populating the input directory.
type GitHubConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Owner   string        `yaml:"owner"`
	Repo    string        `yaml:"repo"`
	Branch  string        `yaml:"branch"`
	Path    string        `yaml:"path"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// MediaConfig holds audio download settings.
type MediaConfig struct {
	AudioDir  string `yaml:"audio_dir"`
	YTDLPPath string `yaml:"ytdlp_path"`
}

// PromptConfig selects the named prompt used for audio.
type PromptConfig struct {
	File string `yaml:"file"`
	Name string `yaml:"name"`
}

// CacheConfig selects the unit cache driver.
type CacheConfig struct {
	Driver   string         `yaml:"driver"` // file, sqlite, postgres or redis
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// Load reads configuration from .env files, an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path == "" {
		for _, candidate := range []string{"verbatim.yaml", "configs/verbatim.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns the defaults of the original batch tools.
func DefaultConfig() *Config {
	return &Config{
		Recognition: RecognitionConfig{
			Backend:         "gemini",
			Model:           "gemini-2.5-flash",
			Location:        "us-central1",
			Temperature:     0,
			TopP:            1,
			MaxOutputTokens: 8192,
			Timeout:         10 * time.Minute,
		},
		Retry: RetryConfig{
			Recognition: BackoffConfig{MaxAttempts: 0, Base: 5 * time.Second, Cap: 60 * time.Second},
			Download:    BackoffConfig{MaxAttempts: 3, Base: 5 * time.Second},
		},
		Render: RenderConfig{DPI: 300},
		Input: InputConfig{
			Dir:        "input_docs",
			Extensions: []string{".pdf"},
		},
		Output: OutputConfig{
			Dir:            "output_texts",
			TranscriptsDir: "transcripts",
			ArchiveDir:     "archived_transcripts",
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
			Branch:  "main",
			Timeout: 60 * time.Second,
		},
		Media: MediaConfig{
			AudioDir:  ".cache/audio",
			YTDLPPath: "yt-dlp",
		},
		Cache: CacheConfig{
			Driver: "file",
			SQLite: SQLiteConfig{Path: ".cache/units.db"},
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "verbatim:"},
		},
		Pipeline: PipelineConfig{Workers: 1},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Dir:    "transcription_logs",
		},
	}
}

// Validate checks everything a pipeline run needs. Missing credentials are fatal.
func (c *Config) Validate() error {
	switch c.Recognition.Backend {
	case "gemini":
		if c.Recognition.APIKey == "" && c.Recognition.Project == "" {
			return fmt.Errorf("GEMINI_API_KEY (or GOOGLE_CLOUD_PROJECT for Vertex AI) is required")
		}
	case "openrouter":
		if c.Recognition.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required")
		}
	default:
		return fmt.Errorf("invalid recognition backend: %q", c.Recognition.Backend)
	}

	if strings.TrimSpace(c.Recognition.Model) == "" {
		return fmt.Errorf("recognition model is required")
	}
	if c.Recognition.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive, got %d", c.Recognition.MaxOutputTokens)
	}
	if c.Recognition.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}

	if c.Retry.Recognition.MaxAttempts < 0 || c.Retry.Download.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts must not be negative")
	}
	if c.Retry.Recognition.Base <= 0 || c.Retry.Download.Base <= 0 {
		return fmt.Errorf("retry base delay must be positive")
	}
	// Unbounded retry is only acceptable for idempotent recognition calls.
	if c.Retry.Download.MaxAttempts == 0 {
		return fmt.Errorf("download retry must be bounded (max_attempts > 0)")
	}

	if c.Render.DPI < 36 || c.Render.DPI > 1200 {
		return fmt.Errorf("render dpi must be between 36 and 1200, got %d", c.Render.DPI)
	}
	if c.Render.MaxEdge < 0 {
		return fmt.Errorf("render max_edge must not be negative")
	}

	if c.Input.Dir == "" || c.Output.Dir == "" || c.Output.TranscriptsDir == "" {
		return fmt.Errorf("input and output directories are required")
	}

	switch c.Cache.Driver {
	case "file":
	case "sqlite":
		if c.Cache.SQLite.Path == "" {
			return fmt.Errorf("cache.sqlite.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn (DATABASE_URL) is required for the postgres driver")
		}
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr (REDIS_URL) is required for the redis driver")
		}
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.GitHub.Enabled && (c.GitHub.Owner == "" || c.GitHub.Repo == "") {
		return fmt.Errorf("github owner and repo are required when github fetching is enabled")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1, got %d", c.Pipeline.Workers)
	}

	return nil
}

// ValidatePrompts checks the named prompt settings required by the audio pipeline.
func (c *Config) ValidatePrompts() error {
	if c.Prompts.File == "" || c.Prompts.Name == "" {
		return fmt.Errorf("PROMPT_FILE or PROMPT_NAME not set")
	}
	if _, err := os.Stat(c.Prompts.File); err != nil {
		return fmt.Errorf("prompt file not found: %s", c.Prompts.File)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RECOGNITION_BACKEND"); v != "" {
		cfg.Recognition.Backend = v
	}

	switch cfg.Recognition.Backend {
	case "openrouter":
		if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
			cfg.Recognition.APIKey = v
		}
	default:
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			cfg.Recognition.APIKey = v
		}
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Recognition.Model = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		cfg.Recognition.Project = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_LOCATION"); v != "" {
		cfg.Recognition.Location = v
	}

	if v := os.Getenv("RENDER_DPI"); v != "" {
		dpi, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RENDER_DPI %q: %w", v, err)
		}
		cfg.Render.DPI = dpi
	}

	if v := os.Getenv("INPUT_DIR"); v != "" {
		cfg.Input.Dir = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("TRANSCRIPTS_DIR"); v != "" {
		cfg.Output.TranscriptsDir = v
	}

	if v := os.Getenv("PROMPT_FILE"); v != "" {
		cfg.Prompts.File = v
	}
	if v := os.Getenv("PROMPT_NAME"); v != "" {
		cfg.Prompts.Name = v
	}

	if v := os.Getenv("CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Cache.Driver = "sqlite"
			cfg.Cache.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Cache.Driver = "postgres"
			cfg.Cache.Postgres.DSN = v
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("GITHUB_OWNER"); v != "" {
		cfg.GitHub.Owner = v
		cfg.GitHub.Enabled = true
	}
	if v := os.Getenv("GITHUB_REPO"); v != "" {
		cfg.GitHub.Repo = v
	}
	if v := os.Getenv("GITHUB_BRANCH"); v != "" {
		cfg.GitHub.Branch = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}

	if v := os.Getenv("PIPELINE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PIPELINE_WORKERS %q: %w", v, err)
		}
		cfg.Pipeline.Workers = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}

	return nil
}
