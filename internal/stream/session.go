package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harlantwood/convo/internal/audio"
	"github.com/harlantwood/convo/internal/config"
	"github.com/harlantwood/convo/internal/observability"
	"github.com/harlantwood/convo/internal/stt"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	// Browsers connect from the app origin; the endpoint carries no credentials.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Event is a message sent from the server to the browser
type Event struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	*stt.Chunk
}

// ClientMessage is a text frame sent by the browser
type ClientMessage struct {
	Event string `json:"event"`
}

const (
	EventConnected = "connected"
	EventChunk     = "chunk"
	EventWarning   = "warning"
	EventError     = "error"
	EventEnd       = "end"
	EventStop      = "stop"
)

// Session relays one browser's audio to a transcriber and its transcript
// events back over the same socket
type Session struct {
	id           string
	conn         *websocket.Conn
	transcriber  stt.Transcriber
	drainTimeout time.Duration

	// mu guards the pre-connect buffer and the switch to live audio
	mu             sync.Mutex
	pending        *audio.RingBuffer
	connected      bool
	overflowWarned bool

	writeMu sync.Mutex
	closed  bool

	ended   chan struct{}
	endOnce sync.Once

	metrics *observability.StreamMetrics
	logger  zerolog.Logger
}

// NewSession creates a session for an upgraded connection
func NewSession(conn *websocket.Conn, transcriber stt.Transcriber, cfg *config.Config) *Session {
	id := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(id).
		With().
		Str("component", "stream").
		Str("session_id", id).
		Logger()

	return &Session{
		id:           id,
		conn:         conn,
		transcriber:  transcriber,
		drainTimeout: cfg.DrainTimeout(),
		pending:      audio.NewRingBuffer(cfg.StreamBufferSize),
		ended:        make(chan struct{}),
		metrics:      observability.NewStreamMetrics(id),
		logger:       logger,
	}
}

// ID returns the session id sent in the connected event
func (s *Session) ID() string {
	return s.id
}

// HandleTranscribeWS upgrades the request and runs a transcription session
// with a fresh transcriber from newTranscriber
func HandleTranscribeWS(cfg *config.Config, newTranscriber func() stt.Transcriber) http.HandlerFunc {
	logger := observability.Component("stream")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader has already replied with an HTTP error
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		session := NewSession(conn, newTranscriber(), cfg)
		session.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Transcription stream opened")
		session.Run(r.Context())
		session.logger.Info().Msg("Transcription stream closed")
	}
}

// Run drives the session until the browser stops or disconnects, or the
// transcriber ends on its own
func (s *Session) Run(ctx context.Context) {
	s.metrics.RecordStreamStart()
	defer s.metrics.RecordStreamEnd()

	ctx, cancel := context.WithCancel(s.logger.WithContext(ctx))
	defer cancel()

	startDone := make(chan struct{})
	go func() {
		defer close(startDone)
		s.start(ctx)
	}()

	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		s.readLoop()
	}()

	select {
	case <-s.ended:
	case <-clientDone:
		if err := s.transcriber.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("Error stopping transcriber")
		}
		s.awaitEnd()
	}

	cancel()
	<-startDone
	// no-op unless Start completed after the browser left
	if err := s.transcriber.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping transcriber")
	}

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	s.writeMu.Unlock()
	s.conn.Close()
	<-clientDone
}

func (s *Session) start(ctx context.Context) {
	s.metrics.RecordSTTStart()

	err := s.transcriber.Start(ctx, stt.Handlers{
		OnConnect: s.onConnect,
		OnChunk:   s.onChunk,
		OnWarn:    s.onWarn,
		OnError:   s.onError,
		OnEnd:     s.end,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to start transcriber")
		s.metrics.RecordError("stt_start_error", "stt")
		s.send(Event{Event: EventError, Message: err.Error()})
		s.end()
	}
}

// awaitEnd waits for the transcriber's final results, bounded by the drain timeout
func (s *Session) awaitEnd() {
	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()

	select {
	case <-s.ended:
	case <-timer.C:
		s.logger.Warn().Dur("drain_timeout", s.drainTimeout).Msg("Transcriber did not finish in time")
		s.metrics.RecordError("drain_timeout", "stream")
		s.end()
	}
}

// readLoop consumes browser frames until stop, disconnect, or close
func (s *Session) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.isEnded() {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudio(data)

		case websocket.TextMessage:
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to parse client message")
				s.send(Event{Event: EventWarning, Message: "invalid message"})
				continue
			}
			if msg.Event == EventStop {
				s.logger.Info().Msg("Stop requested")
				return
			}
			s.logger.Warn().Str("event", msg.Event).Msg("Unknown client event")
			s.send(Event{Event: EventWarning, Message: fmt.Sprintf("unknown event: %s", msg.Event)})
		}
	}
}

// handleAudio buffers audio until the transcriber connects, then forwards it
func (s *Session) handleAudio(data []byte) {
	if len(data) == 0 {
		return
	}
	s.metrics.RecordAudioBytes("in", int64(len(data)))

	s.mu.Lock()
	if !s.connected {
		written := s.pending.Write(data)
		warn := written < len(data) && !s.overflowWarned
		if warn {
			s.overflowWarned = true
		}
		s.mu.Unlock()

		if warn {
			s.logger.Warn().Int("dropped_bytes", len(data)-written).Msg("Pre-connect audio buffer full")
			s.metrics.RecordError("buffer_overflow", "stream")
			s.send(Event{Event: EventWarning, Message: "audio buffer full, dropping audio until connected"})
		}
		return
	}
	s.mu.Unlock()

	if err := s.transcriber.SendAudio(data); err != nil {
		s.logger.Debug().Err(err).Msg("Audio not forwarded to transcriber")
		s.metrics.RecordError("stt_send_error", "stt")
	}
}

func (s *Session) onConnect() {
	s.metrics.RecordSTTConnected()

	// Holding mu while flushing keeps live audio behind the buffered audio.
	s.mu.Lock()
	buffered := s.pending.Drain()
	if len(buffered) > 0 {
		if err := s.transcriber.SendAudio(buffered); err != nil {
			s.logger.Error().Err(err).Msg("Failed to flush buffered audio")
			s.metrics.RecordError("stt_send_error", "stt")
		}
	}
	if dropped := s.pending.Dropped(); dropped > 0 {
		s.logger.Warn().Int64("dropped_bytes", dropped).Msg("Audio dropped before transcriber connected")
	}
	s.connected = true
	s.mu.Unlock()

	s.logger.Info().Int("buffered_bytes", len(buffered)).Msg("Transcriber connected")
	s.send(Event{Event: EventConnected, SessionID: s.id})
}

func (s *Session) onChunk(chunk stt.Chunk) {
	s.metrics.RecordChunk()
	s.send(Event{Event: EventChunk, Chunk: &chunk})
}

func (s *Session) onWarn(msg string) {
	s.send(Event{Event: EventWarning, Message: msg})
}

func (s *Session) onError(err error) {
	s.logger.Error().Err(err).Msg("Transcriber error")
	s.metrics.RecordError("stt_error", "stt")
	s.send(Event{Event: EventError, Message: err.Error()})
}

// end sends the end event and releases Run, once
func (s *Session) end() {
	s.endOnce.Do(func() {
		s.send(Event{Event: EventEnd})

		s.writeMu.Lock()
		s.closed = true
		s.writeMu.Unlock()

		close(s.ended)
	})
}

func (s *Session) isEnded() bool {
	select {
	case <-s.ended:
		return true
	default:
		return false
	}
}

// send writes one event; writes are serialized and dropped after end
func (s *Session) send(ev Event) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(ev); err != nil {
		s.logger.Debug().Err(err).Str("event", ev.Event).Msg("Failed to send event")
	}
}
