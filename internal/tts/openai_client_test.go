package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlantwood/convo/internal/config"
	"github.com/harlantwood/convo/internal/resilience"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		OpenAIAPIKey:               "sk-test",
		OpenAIBaseURL:              baseURL,
		OpenAITTSModel:             "tts-1",
		OpenAITTSVoice:             "alloy",
		OpenAITimeout:              5,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
		RetryMaxAttempts:           3,
		RetryInitialBackoff:        1,
	}
}

func TestSynthesize_Success(t *testing.T) {
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-mp3-bytes"))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL + "/v1/"))
	speech, err := client.Synthesize(context.Background(), Request{Input: "Hello there"})
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3-mp3-bytes"), speech.Audio)
	assert.Equal(t, "audio/mpeg", speech.ContentType)
	assert.Equal(t, "tts-1", speech.Model)
	assert.Equal(t, "alloy", speech.Voice)

	assert.Equal(t, speechRequest{Model: "tts-1", Voice: "alloy", Input: "Hello there", ResponseFormat: "mp3"}, got)
}

func TestSynthesize_RequestOverridesDefaults(t *testing.T) {
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL))
	speech, err := client.Synthesize(context.Background(), Request{Input: "hi", Model: "tts-1-hd", Voice: "nova"})
	require.NoError(t, err)

	assert.Equal(t, "tts-1-hd", got.Model)
	assert.Equal(t, "nova", got.Voice)
	assert.Equal(t, "nova", speech.Voice)
}

func TestSynthesize_EmptyInput(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL))
	for _, input := range []string{"", "   \n"} {
		_, err := client.Synthesize(context.Background(), Request{Input: input})
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Zero(t, calls.Load())
}

func TestSynthesize_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL))
	speech, err := client.Synthesize(context.Background(), Request{Input: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), speech.Audio)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSynthesize_RetriesRateLimitThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL))
	_, err := client.Synthesize(context.Background(), Request{Input: "hi"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "Rate limit reached", apiErr.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSynthesize_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid voice: timeout","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL))
	_, err := client.Synthesize(context.Background(), Request{Input: "hi", Voice: "timeout"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid voice: timeout", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, resilience.StateClosed, client.breaker.GetState())
}

func TestSynthesize_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.CircuitBreakerMaxFailures = 2
	cfg.RetryMaxAttempts = 5
	client := NewOpenAIClient(cfg)

	_, err := client.Synthesize(context.Background(), Request{Input: "hi"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())

	healthy, err := client.HealthCheck(context.Background())
	assert.False(t, healthy)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL))
	_, err := client.Synthesize(context.Background(), Request{Input: "hi"})
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestSynthesize_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewOpenAIClient(testConfig(srv.URL))
	_, err := client.Synthesize(ctx, Request{Input: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, resilience.StateClosed, client.breaker.GetState())
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "tts: api returned status 502", (&APIError{StatusCode: 502}).Error())
	assert.Equal(t, "tts: api returned status 400: bad", (&APIError{StatusCode: 400, Message: "bad"}).Error())
}
