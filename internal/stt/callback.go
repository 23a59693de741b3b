package stt

import (
	"fmt"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

// callback implements msginterfaces.LiveMessageCallback for one connection
type callback struct {
	client *DeepgramClient
	gen    uint64
}

var _ msginterfaces.LiveMessageCallback = (*callback)(nil)

// current returns the session handlers, or false for a replaced connection
func (c *callback) current() (Handlers, bool) {
	d := c.client
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers, d.active && d.gen == c.gen
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.client.logger.Debug().Msg("Deepgram connection opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	h, ok := c.current()
	if !ok {
		return nil
	}
	if chunk, ok := chunkFromMessage(mr); ok {
		c.client.logger.Debug().
			Float64("confidence", chunk.Confidence).
			Float64("start", chunk.Start).
			Msg("Deepgram final transcription")
		h.chunk(chunk)
	}
	return nil
}

// chunkFromMessage returns a chunk for results that close an utterance
func chunkFromMessage(mr *msginterfaces.MessageResponse) (Chunk, bool) {
	if mr == nil || !mr.SpeechFinal || len(mr.Channel.Alternatives) == 0 {
		return Chunk{}, false
	}

	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return Chunk{}, false
	}

	chunk := Chunk{
		Transcript: alt.Transcript,
		Confidence: alt.Confidence,
		Start:      mr.Start,
		Duration:   mr.Duration,
	}
	if chunk.Duration == 0 && len(alt.Words) > 0 {
		chunk.Start = alt.Words[0].Start
		chunk.Duration = alt.Words[len(alt.Words)-1].End - chunk.Start
	}
	return chunk, true
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.client.logger.Info().Str("request_id", md.RequestID).Msg("Deepgram metadata received")
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.client.logger.Debug().Msg("Deepgram: speech started")
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.client.logger.Debug().Msg("Deepgram: utterance ended")
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	d := c.client
	d.mu.Lock()
	stopping, current := d.stopping, d.gen == c.gen
	d.mu.Unlock()

	if !current {
		return nil
	}
	if stopping {
		d.finish()
		return nil
	}
	go d.handleDisconnect(c.gen, fmt.Errorf("connection closed unexpectedly"))
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	if _, ok := c.current(); !ok {
		c.client.logger.Debug().
			Str("error_code", er.ErrCode).
			Msg("Ignoring error from replaced Deepgram connection")
		return nil
	}
	c.client.breaker.RecordResult(false)
	c.client.logger.Error().
		Str("error_code", er.ErrCode).
		Str("error_message", er.ErrMsg).
		Msg("Deepgram error")

	go c.client.handleDisconnect(c.gen, fmt.Errorf("deepgram error %s: %s", er.ErrCode, er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	h, ok := c.current()
	if !ok {
		return nil
	}
	c.client.logger.Warn().Str("data", string(byData)).Msg("Deepgram unhandled event")
	h.warn(fmt.Sprintf("unhandled event: %s", byData))
	return nil
}
