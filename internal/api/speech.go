package api

import (
	"net/http"
	"strconv"

	"github.com/harlantwood/convo/internal/tts"
)

// Speech synthesizes the posted text and answers with the audio clip
func (h *Handler) Speech(w http.ResponseWriter, r *http.Request) {
	if h.synth == nil {
		h.writeError(w, r, errUnavailable, http.StatusServiceUnavailable)
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}

	var req tts.Request
	if err := decodeJSON(body, &req); err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}

	speech, err := h.synth.Synthesize(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", speech.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(speech.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech.Audio)
}
