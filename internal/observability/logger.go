package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu           sync.RWMutex
	globalLogger zerolog.Logger
	initialized  bool
)

// InitLogger initializes the global structured logger on stdout
func InitLogger(level string, pretty bool) {
	InitLoggerTo(os.Stdout, level, pretty)
}

// InitLoggerTo initializes the global structured logger on w, replacing any
// logger set up before
func InitLoggerTo(w io.Writer, level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		// Pretty console output for development
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	logger := zerolog.New(w).With().Timestamp().Logger()

	mu.Lock()
	globalLogger = logger
	initialized = true
	mu.Unlock()

	log.Logger = logger
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	mu.RLock()
	if initialized {
		defer mu.RUnlock()
		return globalLogger
	}
	mu.RUnlock()

	// Initialize with defaults if not already initialized
	InitLogger("info", false)
	return GetLogger()
}

// Component returns the global logger tagged with a component name
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

// WithCorrelationID creates a logger with a correlation ID
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
