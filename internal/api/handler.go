package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/harlantwood/convo/internal/config"
	"github.com/harlantwood/convo/internal/observability"
	"github.com/harlantwood/convo/internal/render"
	"github.com/harlantwood/convo/internal/resilience"
	"github.com/harlantwood/convo/internal/schema"
	"github.com/harlantwood/convo/internal/tts"
)

// Handler serves the render, schema and speech endpoints
type Handler struct {
	defaults     render.Options
	maxBodyBytes int64
	synth        tts.Synthesizer
	logger       zerolog.Logger
}

// New creates a Handler. Render defaults come from cfg; synth may be nil, in
// which case /tts answers 503.
func New(cfg *config.Config, synth tts.Synthesizer) (*Handler, error) {
	defaults, err := render.ParseOptions(cfg.RenderPriorityKeys, cfg.RenderIgnoreSingleKeys, cfg.RenderLanguage, cfg.RenderEscapeHTML)
	if err != nil {
		return nil, fmt.Errorf("invalid render defaults: %w", err)
	}
	maxBody := cfg.RenderMaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{
		defaults:     defaults,
		maxBodyBytes: maxBody,
		synth:        synth,
		logger:       observability.Component("api"),
	}, nil
}

// Register adds the API routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /render", h.Render)
	mux.HandleFunc("POST /schema", h.Schema)
	mux.HandleFunc("POST /tts", h.Speech)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error to the HTTP status the API answers with
func statusFor(err error, fallback int) int {
	var maxBytes *http.MaxBytesError
	var apiErr *tts.APIError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, render.ErrInvalidInput),
		errors.Is(err, errBadRequest),
		errors.Is(err, tts.ErrEmptyInput),
		errors.Is(err, schema.ErrInvalidField),
		errors.Is(err, schema.ErrDuplicateField),
		errors.Is(err, schema.ErrMissingChoices),
		errors.Is(err, schema.ErrUnsupportedType),
		errors.Is(err, schema.ErrReservedField):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return fallback
}

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("service unavailable")
)

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	code := statusFor(err, fallback)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Int("status", code).Msg("Request failed")
	} else {
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", code).Msg("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// readBody reads the request body up to the configured limit
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// decodeJSON decodes a JSON request body into dst
func decodeJSON(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
