package render

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Options controls key ordering and envelope unwrapping. The zero value renders
// with no priority keys, no unwrapping, root collation and no escaping.
type Options struct {
	// PriorityKeys render before all other keys, in this order.
	PriorityKeys []string

	// IgnoreSingleKeyNames lists envelope keys: a mapping holding exactly one of
	// these keys renders as its inner value.
	IgnoreSingleKeyNames []string

	// Language selects the collation used to order non-priority keys.
	Language language.Tag

	// EscapeHTML escapes string leaves and keys. Off by default; callers that
	// embed untrusted text either turn it on or escape beforehand.
	EscapeHTML bool
}

// ParseOptions builds Options from the textual forms used by the HTTP API and
// the CLI. Empty list entries are dropped.
func ParseOptions(priority, unwrap []string, lang string, escape bool) (Options, error) {
	opts := Options{
		PriorityKeys:         cleanList(priority),
		IgnoreSingleKeyNames: cleanList(unwrap),
		EscapeHTML:           escape,
	}
	if lang = strings.TrimSpace(lang); lang != "" {
		tag, err := language.Parse(lang)
		if err != nil {
			return Options{}, fmt.Errorf("%w: language %q: %v", ErrInvalidInput, lang, err)
		}
		opts.Language = tag
	}
	return opts, nil
}

// SplitList splits a comma separated list such as a query parameter value
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return cleanList(strings.Split(s, ","))
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
