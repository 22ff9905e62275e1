package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the speech gateway service
type Config struct {
	// Server configuration
	Host        string `envconfig:"HOST" default:"0.0.0.0"`
	Port        string `envconfig:"PORT" default:"8000"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	APIKey      string `envconfig:"API_KEY"` // Shared secret expected in X-API-Key
	MaxUploadMB int64  `envconfig:"MAX_UPLOAD_MB" default:"25"`

	// Transcription engine
	TranscriptionBackend string `envconfig:"TRANSCRIPTION_BACKEND" default:"whisper"` // whisper, deepgram
	WhisperURL           string `envconfig:"WHISPER_URL" default:"http://localhost:8387"`
	WhisperModel         string `envconfig:"WHISPER_MODEL" default:"base"` // tiny, base, small, medium, large-v3
	DeepgramAPIKey       string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel        string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Diarization engine. Diarization is only offered when HF_TOKEN is set.
	HFToken          string `envconfig:"HF_TOKEN" default:""`
	PyannoteURL      string `envconfig:"PYANNOTE_URL" default:"http://localhost:8388"`
	DiarizationModel string `envconfig:"DIARIZATION_MODEL" default:"pyannote/speaker-diarization-3.1"`

	// Engine loading and inference
	EngineTimeout        int  `envconfig:"ENGINE_TIMEOUT" default:"300"`        // seconds, per load and per inference call
	EngineMaxConcurrency int  `envconfig:"ENGINE_MAX_CONCURRENCY" default:"2"`  // concurrent inference calls per engine
	EngineWarmup         bool `envconfig:"ENGINE_WARMUP" default:"false"`       // load engines at startup instead of first request
	EngineReadyAttempts  int  `envconfig:"ENGINE_READY_ATTEMPTS" default:"5"`   // sidecar health checks before a load fails
	EngineReadyBackoff   int  `envconfig:"ENGINE_READY_BACKOFF" default:"1000"` // milliseconds between first health checks

	// Audio handling
	ScratchDir string `envconfig:"SCRATCH_DIR" default:""` // empty means the OS temp dir
	FFmpegPath string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`

	// Persistence
	StoreBackend string `envconfig:"STORE_BACKEND" default:"none"` // none, sqlite, supabase
	SQLitePath   string `envconfig:"SQLITE_PATH" default:"./transcriptions.db"`
	SupabaseURL  string `envconfig:"SUPABASE_URL" default:""`
	SupabaseKey  string `envconfig:"SUPABASE_KEY" default:""`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Store write attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`       // debug, info, warn, error
	LogPretty         bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled    bool   `envconfig:"METRICS_ENABLED" default:"true"` // Expose /metrics
	GRPCHealthEnabled bool   `envconfig:"GRPC_HEALTH_ENABLED" default:"true"`
	GRPCHealthPort    string `envconfig:"GRPC_HEALTH_PORT" default:"9090"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}

	c.TranscriptionBackend = strings.ToLower(c.TranscriptionBackend)
	switch c.TranscriptionBackend {
	case "whisper":
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when TRANSCRIPTION_BACKEND=deepgram")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIPTION_BACKEND %q", c.TranscriptionBackend)
	}

	c.StoreBackend = strings.ToLower(c.StoreBackend)
	switch c.StoreBackend {
	case "none", "sqlite":
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required when STORE_BACKEND=supabase")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

// DiarizationEnabled reports whether a diarization token is configured.
func (c *Config) DiarizationEnabled() bool {
	return c.HFToken != ""
}

// TranscriptionModel returns the model name for the selected backend.
func (c *Config) TranscriptionModel() string {
	if c.TranscriptionBackend == "deepgram" {
		return c.DeepgramModel
	}
	return c.WhisperModel
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// EngineTimeoutDuration returns ENGINE_TIMEOUT as a duration.
func (c *Config) EngineTimeoutDuration() time.Duration {
	return time.Duration(c.EngineTimeout) * time.Second
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
