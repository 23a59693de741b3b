package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/harlantwood/convo/internal/config"
	"github.com/harlantwood/convo/internal/observability"
	"github.com/harlantwood/convo/internal/resilience"
)

// liveConn is the part of the Deepgram websocket client the session uses
type liveConn interface {
	Write(p []byte) (int, error)
	Finish()
	Stop()
}

// dialFunc opens a connected live socket that reports events to cb
type dialFunc func(ctx context.Context, cb msginterfaces.LiveMessageCallback) (liveConn, error)

// DeepgramClient implements Transcriber using Deepgram's streaming API.
// A client serves one session at a time.
type DeepgramClient struct {
	dial      dialFunc
	reconnect *resilience.ReconnectConfig
	breaker   *resilience.CircuitBreaker

	mu           sync.Mutex
	conn         liveConn
	gen          uint64 // bumped per connection so stale callbacks are ignored
	handlers     Handlers
	active       bool
	stopping     bool
	reconnecting bool
	ctx          context.Context
	cancel       context.CancelFunc
	endOnce      *sync.Once
	logger       zerolog.Logger
}

// NewBreaker returns the circuit breaker shared by every Deepgram session
func NewBreaker(cfg *config.Config) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker("deepgram", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerTimeout())
	observability.InstrumentBreaker(cb)
	return cb
}

// NewDeepgramClient creates a new Deepgram streaming client
func NewDeepgramClient(cfg *config.Config, breaker *resilience.CircuitBreaker) *DeepgramClient {
	return &DeepgramClient{
		dial:      dialDeepgram(cfg.DeepgramAPIKey, transcriptionOptions(cfg)),
		reconnect: cfg.ReconnectConfig(),
		breaker:   breaker,
		logger:    observability.Component("stt"),
	}
}

func transcriptionOptions(cfg *config.Config) *interfaces.LiveTranscriptionOptions {
	// Browser MediaRecorder audio is containerized (webm/opus), so encoding
	// and sample rate are left for Deepgram to detect.
	return &interfaces.LiveTranscriptionOptions{
		Model:          cfg.DeepgramModel,
		Language:       cfg.DeepgramLanguage,
		SmartFormat:    cfg.DeepgramSmartFormat,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
	}
}

func dialDeepgram(apiKey string, tOptions *interfaces.LiveTranscriptionOptions) dialFunc {
	return func(ctx context.Context, cb msginterfaces.LiveMessageCallback) (liveConn, error) {
		client, err := listenClient.NewWSUsingCallback(
			ctx,
			apiKey,
			&interfaces.ClientOptions{EnableKeepAlive: true},
			tOptions,
			cb,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
		}
		if !client.Connect() {
			return nil, ErrConnectFailed
		}
		return client, nil
	}
}

// Start opens a Deepgram live session. OnConnect fires before Start returns.
// The zerolog logger carried by ctx, if any, is used for session logs.
func (d *DeepgramClient) Start(ctx context.Context, h Handlers) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return ErrAlreadyActive
	}
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		d.logger = l.With().Str("component", "stt").Logger()
	}
	d.ctx, d.cancel = context.WithCancel(d.logger.WithContext(ctx))
	d.handlers = h
	d.active = true
	d.stopping = false
	d.reconnecting = false
	d.endOnce = &sync.Once{}
	d.mu.Unlock()

	if err := d.connect(); err != nil {
		d.mu.Lock()
		d.active = false
		d.cancel()
		d.mu.Unlock()
		return err
	}

	d.logger.Info().Msg("Deepgram streaming client started")
	h.connect()
	return nil
}

// connect dials a new socket and installs it as the current connection
func (d *DeepgramClient) connect() error {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	ctx := d.ctx
	d.mu.Unlock()

	var conn liveConn
	err := d.breaker.Call(func() error {
		var err error
		conn, err = d.dial(ctx, &callback{client: d, gen: gen})
		return err
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active || d.stopping || d.gen != gen {
		conn.Stop()
		return ErrNotActive
	}
	d.conn = conn
	return nil
}

// SendAudio sends an audio chunk to Deepgram
func (d *DeepgramClient) SendAudio(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	d.mu.Lock()
	active, conn, gen := d.active && !d.stopping, d.conn, d.gen
	d.mu.Unlock()

	if !active {
		return ErrNotActive
	}
	if conn == nil {
		return ErrNotConnected
	}

	err := d.breaker.Call(func() error {
		_, err := conn.Write(audio)
		return err
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		go d.handleDisconnect(gen, err)
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return err
}

// Stop closes the session. The socket is finished in the background so
// final results can still arrive; OnEnd fires once it is closed.
func (d *DeepgramClient) Stop() error {
	d.mu.Lock()
	if !d.active || d.stopping {
		d.mu.Unlock()
		return nil
	}
	d.stopping = true
	conn := d.conn
	d.mu.Unlock()

	go func() {
		if conn != nil {
			conn.Finish()
		}
		d.finish()
		d.logger.Info().Msg("Deepgram streaming client stopped")
	}()
	return nil
}

// finish ends the session exactly once
func (d *DeepgramClient) finish() {
	d.mu.Lock()
	once, h := d.endOnce, d.handlers
	d.mu.Unlock()
	if once == nil {
		return
	}

	once.Do(func() {
		d.mu.Lock()
		d.active = false
		d.conn = nil
		d.cancel()
		d.mu.Unlock()
		h.end()
	})
}

// handleDisconnect replaces a failed connection, or ends the session when
// reconnection is exhausted
func (d *DeepgramClient) handleDisconnect(gen uint64, cause error) {
	d.mu.Lock()
	if !d.active || d.stopping || d.reconnecting || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.reconnecting = true
	old := d.conn
	d.conn = nil
	ctx, h := d.ctx, d.handlers
	d.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	d.logger.Warn().Err(cause).Msg("Deepgram connection lost, reconnecting")
	h.warn("reconnecting")

	err := resilience.Reconnect(ctx, d.connect, d.reconnect)

	d.mu.Lock()
	d.reconnecting = false
	stopping := d.stopping
	d.mu.Unlock()

	if err == nil || stopping {
		return
	}
	d.logger.Error().Err(err).Msg("Failed to reconnect Deepgram client")
	h.fail(fmt.Errorf("stt: %w", err))
	d.finish()
}

// HealthCheck reports unhealthy while the shared breaker refuses connections
func HealthCheck(breaker *resilience.CircuitBreaker) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		if breaker.GetState() == resilience.StateOpen {
			return false, resilience.ErrCircuitOpen
		}
		return true, nil
	}
}
