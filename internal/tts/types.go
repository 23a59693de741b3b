package tts

import (
	"context"
	"errors"
	"fmt"
)

// ContentType is the media type of every synthesized clip
const ContentType = "audio/mpeg"

var (
	// ErrEmptyInput is returned before any request is made for blank text
	ErrEmptyInput = errors.New("tts: input text is empty")

	// ErrEmptyAudio means the API answered 200 with no body
	ErrEmptyAudio = errors.New("tts: empty audio response")
)

// Request is one synthesis call. Empty Model and Voice use the client defaults.
type Request struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
	Voice string `json:"voice,omitempty"`
}

// Speech is a synthesized clip
type Speech struct {
	Audio       []byte
	ContentType string
	Model       string
	Voice       string
}

// APIError is a non-200 answer from the speech API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tts: api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("tts: api returned status %d: %s", e.StatusCode, e.Message)
}

// Synthesizer defines the interface for a Text-to-Speech client
type Synthesizer interface {
	// Synthesize converts text to a complete audio clip
	Synthesize(ctx context.Context, req Request) (*Speech, error)
}
