// Package schema assembles JSON Schema documents for structured extraction
// from a list of user-declared fields.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/harlantwood/convo/internal/render"
)

// Field types accepted by Build.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeEnum   = "enum"
)

const (
	// EnvelopeKey wraps the extracted records in the generated document.
	EnvelopeKey = "items"

	commentsKey         = "comments"
	commentsDescription = "Any additional information or comments you would like to add"
)

var (
	ErrInvalidField    = errors.New("invalid field")
	ErrDuplicateField  = errors.New("field names must be unique")
	ErrMissingChoices  = errors.New("enum field must have choices")
	ErrUnsupportedType = errors.New("unsupported field type")
	ErrReservedField   = errors.New("field name is reserved")
)

// Field describes one property of an extracted record.
type Field struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Choices     []string `json:"choices,omitempty" yaml:"choices"`
	Required    bool     `json:"required,omitempty" yaml:"required"`
}

// Build returns the schema for a document of the form {"items": [record...]}
// where each record has the given fields plus an optional free-text
// "comments" property.
func Build(fields []Field) (*jsonschema.Schema, error) {
	if err := Validate(fields); err != nil {
		return nil, err
	}

	props := jsonschema.NewProperties()
	var required []string
	for _, f := range fields {
		props.Set(f.Name, property(f))
		if f.Required {
			required = append(required, f.Name)
		}
	}
	props.Set(commentsKey, &jsonschema.Schema{
		Type:        "string",
		Description: commentsDescription,
	})

	record := &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}

	root := jsonschema.NewProperties()
	root.Set(EnvelopeKey, &jsonschema.Schema{
		Type:  "array",
		Items: record,
	})

	return &jsonschema.Schema{
		Version:    jsonschema.Version,
		Type:       "object",
		Properties: root,
		Required:   []string{EnvelopeKey},
	}, nil
}

// Validate checks the field list without building anything.
func Validate(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidField, i)
		}
		if name != f.Name {
			return fmt.Errorf("%w: field name %q has surrounding whitespace", ErrInvalidField, f.Name)
		}
		if strings.EqualFold(name, commentsKey) {
			return fmt.Errorf("%w: %q", ErrReservedField, f.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		seen[name] = struct{}{}

		switch f.Type {
		case TypeString, TypeNumber:
		case TypeEnum:
			if len(f.Choices) == 0 {
				return fmt.Errorf("%w: %s", ErrMissingChoices, f.Name)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedType, f.Type)
		}
	}
	return nil
}

func property(f Field) *jsonschema.Schema {
	s := &jsonschema.Schema{Description: f.Description}
	switch f.Type {
	case TypeString:
		s.Type = "string"
	case TypeNumber:
		s.Type = "number"
	case TypeEnum:
		s.Type = "string"
		s.Enum = make([]any, len(f.Choices))
		for i, c := range f.Choices {
			s.Enum[i] = c
		}
	}
	return s
}

// PriorityKeys returns the field names in declaration order.
func PriorityKeys(fields []Field) []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Name)
	}
	return keys
}

// RenderOptions returns options that render a document produced against
// Build(fields) with the envelope hidden and fields in declared order.
func RenderOptions(fields []Field) render.Options {
	return render.Options{
		PriorityKeys:         PriorityKeys(fields),
		IgnoreSingleKeyNames: []string{EnvelopeKey},
	}
}
