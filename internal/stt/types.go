package stt

import (
	"context"
	"errors"
)

var (
	ErrAlreadyActive = errors.New("stt: transcription already active")
	ErrNotActive     = errors.New("stt: transcription not active")
	ErrNotConnected  = errors.New("stt: reconnecting, audio dropped")
	ErrConnectFailed = errors.New("stt: connection failed")
)

// Chunk is one finished utterance. Start and Duration are in seconds from
// the beginning of the audio stream.
type Chunk struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
}

// Handlers receives transcription events. Any field may be nil. Handlers are
// called from the connection's goroutines and must not block for long.
type Handlers struct {
	OnConnect func()
	OnChunk   func(Chunk)
	OnEnd     func()
	OnError   func(error)
	OnWarn    func(string)
}

func (h Handlers) connect() {
	if h.OnConnect != nil {
		h.OnConnect()
	}
}

func (h Handlers) chunk(c Chunk) {
	if h.OnChunk != nil {
		h.OnChunk(c)
	}
}

func (h Handlers) end() {
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

func (h Handlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Handlers) warn(msg string) {
	if h.OnWarn != nil {
		h.OnWarn(msg)
	}
}

// Transcriber is the interface for live speech-to-text sessions
type Transcriber interface {
	// Start opens the session. OnConnect fires once audio is accepted.
	Start(ctx context.Context, h Handlers) error

	// SendAudio forwards an encoded audio chunk
	SendAudio(audio []byte) error

	// Stop closes the session; OnEnd fires once it is closed
	Stop() error
}
