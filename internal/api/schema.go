package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/harlantwood/convo/internal/observability"
	"github.com/harlantwood/convo/internal/schema"
)

// SchemaRequest is the body of POST /schema
type SchemaRequest struct {
	Fields []schema.Field `json:"fields"`
}

// Schema answers with the JSON Schema for the posted field list
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}

	var req SchemaRequest
	if err := decodeJSON(body, &req); err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}

	s, err := schema.Build(req.Fields)
	observability.RecordSchemaBuild(err == nil)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}

	doc, err := json.Marshal(s)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to encode schema: %w", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
