package render

import (
	"html"
	"slices"
	"strings"

	"golang.org/x/text/collate"
)

const (
	unknownItem = "(Unknown)"
	commentsKey = "comments"
)

// Render converts v into an HTML fragment.
//
// Sequences become <ol class="array">, mappings become <ul class="hash"> with
// each item labelled <strong>key:</strong>, and scalars are written as text.
// Null renders as the empty string wherever it appears. Empty sequences and
// mappings render a single "(Unknown)" item. Leaves are not escaped unless
// opts.EscapeHTML is set.
//
// Render is safe for concurrent use.
func Render(v Value, opts Options) string {
	r := newRenderer(opts)
	var b strings.Builder
	r.value(&b, v)
	return b.String()
}

type renderer struct {
	priority map[string]int
	envelope map[string]struct{}
	collator *collate.Collator
	escape   bool
}

func newRenderer(opts Options) *renderer {
	r := &renderer{
		priority: make(map[string]int, len(opts.PriorityKeys)),
		envelope: make(map[string]struct{}, len(opts.IgnoreSingleKeyNames)),
		collator: collate.New(opts.Language),
		escape:   opts.EscapeHTML,
	}
	for i, k := range opts.PriorityKeys {
		if _, seen := r.priority[k]; !seen {
			r.priority[k] = i
		}
	}
	for _, k := range opts.IgnoreSingleKeyNames {
		r.envelope[k] = struct{}{}
	}
	return r
}

func (r *renderer) value(b *strings.Builder, v Value) {
	if inner, ok := r.unwrap(v); ok {
		r.value(b, inner)
		return
	}

	switch v.kind {
	case KindSequence:
		r.sequence(b, v)
	case KindMapping:
		r.mapping(b, v)
	case KindString:
		b.WriteString(r.text(v.text))
	case KindNumber:
		b.WriteString(formatNumber(v.num))
	case KindBool:
		if v.flag {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindNull:
	}
}

// unwrap returns the inner value of a single-key envelope mapping
func (r *renderer) unwrap(v Value) (Value, bool) {
	if v.kind != KindMapping || v.Len() != 1 {
		return Value{}, false
	}
	p := v.pairs.Oldest()
	if _, ok := r.envelope[p.Key]; !ok {
		return Value{}, false
	}
	return p.Value, true
}

func (r *renderer) sequence(b *strings.Builder, v Value) {
	b.WriteString(`<ol class="array">`)
	if len(v.items) == 0 {
		b.WriteString("<li>" + unknownItem + "</li>")
	}
	for _, item := range v.items {
		b.WriteString("<li>")
		r.value(b, item)
		b.WriteString("</li>")
	}
	b.WriteString("</ol>")
}

func (r *renderer) mapping(b *strings.Builder, v Value) {
	b.WriteString(`<ul class="hash">`)
	keys := v.keys()
	if len(keys) == 0 {
		b.WriteString("<li>" + unknownItem + "</li>")
	}
	slices.SortFunc(keys, r.compareKeys)
	for _, k := range keys {
		item, _ := v.pairs.Get(k)
		b.WriteString("<li><strong>")
		b.WriteString(r.text(k))
		b.WriteString(":</strong> ")
		r.value(b, item)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}

func (r *renderer) text(s string) string {
	if r.escape {
		return html.EscapeString(s)
	}
	return s
}

// compareKeys orders mapping keys: "comments" last, then priority keys in
// priority order, then everything else by collation. Byte order breaks
// collation ties so distinct keys never compare equal.
func (r *renderer) compareKeys(a, b string) int {
	if ac, bc := isCommentsKey(a), isCommentsKey(b); ac != bc {
		if ac {
			return 1
		}
		return -1
	}

	ai, aok := r.priority[a]
	bi, bok := r.priority[b]
	switch {
	case aok && bok:
		return ai - bi
	case aok:
		return -1
	case bok:
		return 1
	}

	if c := r.collator.CompareString(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func isCommentsKey(k string) bool {
	return strings.EqualFold(strings.TrimSpace(k), commentsKey)
}
