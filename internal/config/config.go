package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/harlantwood/convo/internal/resilience"
)

// Config holds all configuration for the convo service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service (e.g. https://xxx.ngrok-free.dev).
	// Only used for logging the endpoints; falls back to http://localhost:PORT.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Deepgram STT API configuration
	DeepgramAPIKey      string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel       string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage    string `envconfig:"DEEPGRAM_LANGUAGE" default:"en-US"`
	DeepgramSmartFormat bool   `envconfig:"DEEPGRAM_SMART_FORMAT" default:"true"`

	// OpenAI TTS API configuration
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAITTSModel string `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"` // tts-1, tts-1-hd
	OpenAITTSVoice string `envconfig:"OPENAI_TTS_VOICE" default:"alloy"`
	OpenAITimeout  int    `envconfig:"OPENAI_TIMEOUT" default:"30"` // seconds

	// Transcription stream configuration
	StreamBufferSize   int `envconfig:"STREAM_BUFFER_SIZE" default:"65536"`  // Pre-connect audio buffer in bytes
	StreamDrainTimeout int `envconfig:"STREAM_DRAIN_TIMEOUT" default:"3000"` // Wait for the final transcript after stop, in milliseconds

	// Render defaults, used when a request does not carry its own options
	RenderPriorityKeys     []string `envconfig:"RENDER_PRIORITY_KEYS" default:""`
	RenderIgnoreSingleKeys []string `envconfig:"RENDER_IGNORE_SINGLE_KEYS" default:"items"`
	RenderLanguage         string   `envconfig:"RENDER_LANGUAGE" default:""` // BCP 47 tag, empty for root collation
	RenderEscapeHTML       bool     `envconfig:"RENDER_ESCAPE_HTML" default:"false"`
	RenderMaxBodyBytes     int64    `envconfig:"RENDER_MAX_BODY_BYTES" default:"1048576"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""`    // gRPC health service port, disabled when empty
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

// Validate checks required keys and value ranges
func (c *Config) Validate() error {
	var errs []error
	if c.DeepgramAPIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY is required"))
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.StreamBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("STREAM_BUFFER_SIZE must be positive, got %d", c.StreamBufferSize))
	}
	if c.RenderMaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("RENDER_MAX_BODY_BYTES must be positive, got %d", c.RenderMaxBodyBytes))
	}
	if c.CircuitBreakerMaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("CIRCUIT_BREAKER_MAX_FAILURES must be positive, got %d", c.CircuitBreakerMaxFailures))
	}
	if c.RetryMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", c.RetryMaxAttempts))
	}
	return errors.Join(errs...)
}

// PublicBaseURL returns PUBLIC_URL or the local address when unset
func (c *Config) PublicBaseURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return "http://localhost:" + c.Port
}

// OpenAIRequestTimeout returns the per-request timeout for the TTS API
func (c *Config) OpenAIRequestTimeout() time.Duration {
	return time.Duration(c.OpenAITimeout) * time.Second
}

// DrainTimeout returns how long a stopped stream waits for the final transcript
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.StreamDrainTimeout) * time.Millisecond
}

// CircuitBreakerTimeout returns the open-state duration before a probe is allowed
func (c *Config) CircuitBreakerTimeout() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// RetryConfig builds the retry policy for outbound HTTP calls
func (c *Config) RetryConfig() *resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = c.RetryMaxAttempts
	rc.InitialBackoff = time.Duration(c.RetryInitialBackoff) * time.Millisecond
	return rc
}

// ReconnectConfig builds the reconnection policy for streaming connections
func (c *Config) ReconnectConfig() *resilience.ReconnectConfig {
	rc := resilience.DefaultReconnectConfig()
	rc.MaxAttempts = c.ReconnectMaxAttempts
	rc.Backoff = time.Duration(c.ReconnectBackoff) * time.Millisecond
	return rc
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
