package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/harlantwood/convo/internal/observability"
	"github.com/harlantwood/convo/internal/render"
	"github.com/harlantwood/convo/internal/schema"
)

// RenderRequest is the JSON body of POST /render
type RenderRequest struct {
	Value   json.RawMessage `json:"value"`
	Options *RenderOptions  `json:"options,omitempty"`
	Fields  []schema.Field  `json:"fields,omitempty"`
}

// RenderOptions overrides the server defaults. Absent fields keep the default.
type RenderOptions struct {
	PriorityKeys         []string `json:"priorityKeys,omitempty"`
	IgnoreSingleKeyNames []string `json:"ignoreSingleKeyNames,omitempty"`
	Language             *string  `json:"language,omitempty"`
	EscapeHTML           *bool    `json:"escapeHTML,omitempty"`
}

// Render turns a JSON or YAML document into an HTML fragment
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	html, err := h.render(w, r)
	observability.RecordRender(err == nil, time.Since(start))
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := h.readBody(w, r)
	if err != nil {
		return "", err
	}

	if isYAML(r.Header.Get("Content-Type")) {
		value, err := render.Decode(body)
		if err != nil {
			return "", err
		}
		opts, err := h.queryOptions(r)
		if err != nil {
			return "", err
		}
		return render.Render(value, opts), nil
	}

	var req RenderRequest
	if err := decodeJSON(body, &req); err != nil {
		return "", err
	}
	if len(req.Value) == 0 {
		return "", fmt.Errorf("%w: missing value", errBadRequest)
	}
	value, err := render.Decode(req.Value)
	if err != nil {
		return "", err
	}
	opts, err := h.requestOptions(req)
	if err != nil {
		return "", err
	}
	return render.Render(value, opts), nil
}

// requestOptions merges the body's options and fields over the defaults
func (h *Handler) requestOptions(req RenderRequest) (render.Options, error) {
	opts := h.defaults

	if len(req.Fields) > 0 {
		if err := schema.Validate(req.Fields); err != nil {
			return render.Options{}, err
		}
		fieldOpts := schema.RenderOptions(req.Fields)
		opts.PriorityKeys = fieldOpts.PriorityKeys
		for _, name := range fieldOpts.IgnoreSingleKeyNames {
			if !slices.Contains(opts.IgnoreSingleKeyNames, name) {
				opts.IgnoreSingleKeyNames = append(slices.Clip(opts.IgnoreSingleKeyNames), name)
			}
		}
	}

	o := req.Options
	if o == nil {
		return opts, nil
	}
	if o.PriorityKeys != nil {
		opts.PriorityKeys = o.PriorityKeys
	}
	if o.IgnoreSingleKeyNames != nil {
		opts.IgnoreSingleKeyNames = o.IgnoreSingleKeyNames
	}
	if o.EscapeHTML != nil {
		opts.EscapeHTML = *o.EscapeHTML
	}
	if o.Language != nil {
		parsed, err := render.ParseOptions(nil, nil, *o.Language, false)
		if err != nil {
			return render.Options{}, err
		}
		opts.Language = parsed.Language
	}
	return opts, nil
}

// queryOptions reads priority, unwrap, lang and escape query parameters
// over the defaults
func (h *Handler) queryOptions(r *http.Request) (render.Options, error) {
	opts := h.defaults
	q := r.URL.Query()

	if q.Has("priority") {
		opts.PriorityKeys = render.SplitList(q.Get("priority"))
	}
	if q.Has("unwrap") {
		opts.IgnoreSingleKeyNames = render.SplitList(q.Get("unwrap"))
	}
	if q.Has("escape") {
		escape, err := strconv.ParseBool(q.Get("escape"))
		if err != nil {
			return render.Options{}, fmt.Errorf("%w: escape %q is not a boolean", errBadRequest, q.Get("escape"))
		}
		opts.EscapeHTML = escape
	}
	if q.Has("lang") {
		parsed, err := render.ParseOptions(nil, nil, q.Get("lang"), false)
		if err != nil {
			return render.Options{}, err
		}
		opts.Language = parsed.Language
	}
	return opts, nil
}

func isYAML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return true
	}
	return false
}
