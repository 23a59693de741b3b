package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

const (
	// maxDepth bounds nesting so hostile documents cannot exhaust the stack
	maxDepth = 512

	// A YAML document may expand to nodesPerByte nodes per source byte, and
	// never fewer than minNodeBudget, once aliases are followed.
	nodesPerByte  = 4
	minNodeBudget = 1 << 14
)

// Decode parses a JSON or YAML document into a Value. Well-formed JSON is
// read with encoding/json so every JSON escape is honoured. Anything else is
// read as YAML, and only the first document in the stream is used.
func Decode(doc []byte) (Value, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return Value{}, fmt.Errorf("%w: empty document", ErrInvalidInput)
	}
	if json.Valid(doc) {
		return decodeJSON(doc)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	budget := max(len(doc)*nodesPerByte, minNodeBudget)
	d := &yamlDecoder{budget: budget, limit: budget}
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return Value{}, fmt.Errorf("%w: empty document", ErrInvalidInput)
		}
		return d.fromNode(root.Content[0], 0)
	}
	return d.fromNode(&root, 0)
}

func decodeJSON(doc []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	return fromToken(dec, 0)
}

func fromToken(dec *json.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrInvalidInput, maxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch t := tok.(type) {
	case json.Delim:
		if t == '[' {
			items := []Value{}
			for dec.More() {
				item, err := fromToken(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return Value{kind: KindSequence, items: items}, nil
		}

		pairs := orderedmap.New[string, Value]()
		for dec.More() {
			offset := dec.InputOffset()
			keyTok, err := dec.Token()
			if err != nil {
				return Value{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			key, _ := keyTok.(string)
			if key == "" {
				return Value{}, fmt.Errorf("%w: empty key at offset %d", ErrInvalidInput, offset)
			}
			if _, dup := pairs.Get(key); dup {
				return Value{}, fmt.Errorf("%w: duplicate key %q at offset %d", ErrInvalidInput, key, offset)
			}
			val, err := fromToken(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			pairs.Set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return Value{kind: KindMapping, pairs: pairs}, nil

	case string:
		return String(t), nil
	case json.Number:
		return parseNumber(t.String())
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}

	return Value{}, fmt.Errorf("%w: unexpected token %v", ErrInvalidInput, tok)
}

// yamlDecoder walks a yaml.Node tree. budget counts the nodes still allowed,
// aliases included, so nested anchors cannot blow up the result.
type yamlDecoder struct {
	budget int
	limit  int
}

func (d *yamlDecoder) fromNode(n *yaml.Node, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrInvalidInput, maxDepth)
	}
	if n.Kind != yaml.AliasNode {
		d.budget--
		if d.budget < 0 {
			return Value{}, fmt.Errorf("%w: document expands beyond %d nodes", ErrInvalidInput, d.limit)
		}
	}

	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return Value{}, fmt.Errorf("%w: unresolved alias at line %d", ErrInvalidInput, n.Line)
		}
		return d.fromNode(n.Alias, depth+1)

	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := d.fromNode(c, depth+1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{kind: KindSequence, items: items}, nil

	case yaml.MappingNode:
		return d.fromMapping(n, depth)

	case yaml.ScalarNode:
		return fromScalar(n)
	}

	return Value{}, fmt.Errorf("%w: unexpected node kind %d at line %d", ErrInvalidInput, n.Kind, n.Line)
}

// fromMapping applies merge keys (<<) in place. Keys written in the mapping
// win over merged ones, and earlier merge sources win over later ones.
func (d *yamlDecoder) fromMapping(n *yaml.Node, depth int) (Value, error) {
	explicit := make(map[string]struct{}, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode := n.Content[i]
		if keyNode.Kind != yaml.ScalarNode {
			return Value{}, fmt.Errorf("%w: non-scalar key at line %d", ErrInvalidInput, keyNode.Line)
		}
		if isMergeKey(keyNode) {
			continue
		}
		if keyNode.Value == "" {
			return Value{}, fmt.Errorf("%w: empty key at line %d", ErrInvalidInput, keyNode.Line)
		}
		if _, dup := explicit[keyNode.Value]; dup {
			return Value{}, fmt.Errorf("%w: duplicate key %q at line %d", ErrInvalidInput, keyNode.Value, keyNode.Line)
		}
		explicit[keyNode.Value] = struct{}{}
	}

	pairs := orderedmap.New[string, Value](len(n.Content) / 2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		if isMergeKey(keyNode) {
			sources, err := d.mergeSources(valNode, depth+1)
			if err != nil {
				return Value{}, err
			}
			for _, src := range sources {
				for p := src.pairs.Oldest(); p != nil; p = p.Next() {
					if _, ok := explicit[p.Key]; ok {
						continue
					}
					if _, ok := pairs.Get(p.Key); ok {
						continue
					}
					pairs.Set(p.Key, p.Value)
				}
			}
			continue
		}

		val, err := d.fromNode(valNode, depth+1)
		if err != nil {
			return Value{}, err
		}
		pairs.Set(keyNode.Value, val)
	}
	return Value{kind: KindMapping, pairs: pairs}, nil
}

func (d *yamlDecoder) mergeSources(n *yaml.Node, depth int) ([]Value, error) {
	v, err := d.fromNode(n, depth)
	if err != nil {
		return nil, err
	}
	switch v.kind {
	case KindMapping:
		return []Value{v}, nil
	case KindSequence:
		for _, item := range v.items {
			if item.kind != KindMapping {
				return nil, fmt.Errorf("%w: merge at line %d needs mappings, got %s", ErrInvalidInput, n.Line, item.kind)
			}
		}
		return v.items, nil
	}
	return nil, fmt.Errorf("%w: merge at line %d needs a mapping, got %s", ErrInvalidInput, n.Line, v.kind)
}

func isMergeKey(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!merge"
}

func fromScalar(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return Number(f), nil
	}
	return String(n.Value), nil
}

// FromAny converts the output of encoding/json (and similar decoders) into a
// Value. Map keys are inserted in sorted order.
func FromAny(x any) (Value, error) {
	return fromAny(x, 0)
}

func fromAny(x any, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrInvalidInput, maxDepth)
	}

	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		return parseNumber(t.String())
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Value{kind: KindSequence, items: items}, nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			item, err := fromAny(e, depth+1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{kind: KindSequence, items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			if k == "" {
				return Value{}, fmt.Errorf("%w: empty key", ErrInvalidInput)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := orderedmap.New[string, Value](len(keys))
		for _, k := range keys {
			val, err := fromAny(t[k], depth+1)
			if err != nil {
				return Value{}, err
			}
			pairs.Set(k, val)
		}
		return Value{kind: KindMapping, pairs: pairs}, nil
	}

	return Value{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidInput, x)
}

func parseNumber(s string) (Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: number %q", ErrInvalidInput, s)
	}
	return Number(f), nil
}
