package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlantwood/convo/internal/config"
	"github.com/harlantwood/convo/internal/observability"
	"github.com/harlantwood/convo/internal/resilience"
)

// maxAudioBytes bounds a single clip read from the API
const maxAudioBytes = 32 << 20

// OpenAIClient implements Synthesizer using OpenAI's speech endpoint
type OpenAIClient struct {
	apiKey       string
	endpoint     string
	defaultModel string
	defaultVoice string
	httpClient   *http.Client
	retry        *resilience.RetryConfig
	breaker      *resilience.CircuitBreaker
	logger       zerolog.Logger
}

// speechRequest is the JSON body of POST /audio/speech
type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIClient creates a new OpenAI TTS client
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	breaker := resilience.NewCircuitBreaker("openai-tts", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerTimeout())
	observability.InstrumentBreaker(breaker)

	return &OpenAIClient{
		apiKey:       cfg.OpenAIAPIKey,
		endpoint:     strings.TrimRight(cfg.OpenAIBaseURL, "/") + "/audio/speech",
		defaultModel: cfg.OpenAITTSModel,
		defaultVoice: cfg.OpenAITTSVoice,
		httpClient:   &http.Client{Timeout: cfg.OpenAIRequestTimeout()},
		retry:        cfg.RetryConfig(),
		breaker:      breaker,
		logger:       observability.Component("tts"),
	}
}

// Synthesize converts text to an MP3 clip. Rate limiting, 5xx answers and
// transport failures are retried; other API errors are returned as *APIError.
func (c *OpenAIClient) Synthesize(ctx context.Context, req Request) (*Speech, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, ErrEmptyInput
	}
	if req.Model == "" {
		req.Model = c.defaultModel
	}
	if req.Voice == "" {
		req.Voice = c.defaultVoice
	}

	body, err := json.Marshal(speechRequest{
		Model:          req.Model,
		Voice:          req.Voice,
		Input:          req.Input,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	var audio []byte
	attempt := 0
	err = resilience.Retry(ctx, func(ctx context.Context) error {
		attempt++
		var permanent error
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			audio, err = c.post(ctx, body)
			if err != nil && !isTransient(ctx, err) {
				// client errors say nothing about upstream health
				permanent = err
				return nil
			}
			return err
		})
		if permanent != nil {
			return permanent
		}
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Speech request failed")
		}
		return err
	}, c.retry, func(err error) bool { return isTransient(ctx, err) })

	observability.RecordTTS(err == nil, time.Since(start))
	if err != nil {
		observability.RecordError(errorType(err), "tts")
		return nil, err
	}

	c.logger.Debug().
		Str("model", req.Model).
		Str("voice", req.Voice).
		Int("input_chars", len(req.Input)).
		Int("audio_bytes", len(audio)).
		Dur("latency", time.Since(start)).
		Msg("Synthesized speech")

	return &Speech{
		Audio:       audio,
		ContentType: ContentType,
		Model:       req.Model,
		Voice:       req.Voice,
	}, nil
}

func (c *OpenAIClient) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewRetryableError(apiErr)
		}
		return nil, apiErr
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("failed to read audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}

// HealthCheck reports unhealthy while the breaker refuses requests
func (c *OpenAIClient) HealthCheck(ctx context.Context) (bool, error) {
	if c.apiKey == "" {
		return false, errors.New("OPENAI_API_KEY is not set")
	}
	if c.breaker.GetState() == resilience.StateOpen {
		return false, resilience.ErrCircuitOpen
	}
	return true, nil
}

// isTransient reports whether err is worth another attempt. API errors are
// transient only when marked retryable, whatever their message says.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if resilience.IsRetryable(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) || errors.Is(err, ErrEmptyAudio) {
		return false
	}
	return resilience.IsRetryableNetworkError(err)
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	var payload errorResponse
	if json.Unmarshal(raw, &payload) == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

func errorType(err error) string {
	var apiErr *APIError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("status_%d", apiErr.StatusCode)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "transport"
}
