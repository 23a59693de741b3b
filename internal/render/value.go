package render

import (
	"errors"
	"math"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrInvalidInput is returned when a document or Go value cannot be turned into a Value
var ErrInvalidInput = errors.New("invalid input")

// Kind identifies which case of Value is populated
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable structured value. The zero Value is Null.
type Value struct {
	kind  Kind
	text  string
	num   float64
	flag  bool
	items []Value
	pairs *orderedmap.OrderedMap[string, Value]
}

// Entry is one key/value pair of a Mapping
type Entry struct {
	Key   string
	Value Value
}

// KV builds an Entry
func KV(key string, v Value) Entry {
	return Entry{Key: key, Value: v}
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, text: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Int(i int64) Value { return Value{kind: KindNumber, num: float64(i)} }
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Seq builds a Sequence. The slice is copied.
func Seq(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSequence, items: cp}
}

// Map builds a Mapping. A repeated key replaces the earlier value but keeps
// the earlier position.
func Map(entries ...Entry) Value {
	pairs := orderedmap.New[string, Value](len(entries))
	for _, e := range entries {
		pairs.Set(e.Key, e.Value)
	}
	return Value{kind: KindMapping, pairs: pairs}
}

// Kind returns the variant tag
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the string payload of a String value
func (v Value) Text() (string, bool) {
	return v.text, v.kind == KindString
}

// Float returns the payload of a Number value
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Boolean returns the payload of a Bool value
func (v Value) Boolean() (bool, bool) {
	return v.flag, v.kind == KindBool
}

// Elements returns a copy of a Sequence's items
func (v Value) Elements() ([]Value, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp, true
}

// Entries returns a Mapping's pairs in insertion order
func (v Value) Entries() ([]Entry, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	out := make([]Entry, 0, v.Len())
	if v.pairs == nil {
		return out, true
	}
	for p := v.pairs.Oldest(); p != nil; p = p.Next() {
		out = append(out, Entry{Key: p.Key, Value: p.Value})
	}
	return out, true
}

// Get looks up a key in a Mapping
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping || v.pairs == nil {
		return Value{}, false
	}
	return v.pairs.Get(key)
}

// Len is the number of items of a Sequence or pairs of a Mapping, 0 otherwise
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindMapping:
		if v.pairs == nil {
			return 0
		}
		return v.pairs.Len()
	}
	return 0
}

// keys returns the Mapping keys in insertion order
func (v Value) keys() []string {
	if v.pairs == nil {
		return nil
	}
	keys := make([]string, 0, v.pairs.Len())
	for p := v.pairs.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Equal reports deep equality. Mapping insertion order is not significant.
// Numbers compare by value, so NaN is never equal to itself.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindString:
		return a.text == b.text
	case KindNumber:
		return a.num == b.num
	case KindBool:
		return a.flag == b.flag
	case KindSequence:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if a.Len() != b.Len() {
			return false
		}
		for _, k := range a.keys() {
			bv, ok := b.Get(k)
			if !ok {
				return false
			}
			av, _ := a.Get(k)
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// formatNumber produces the same text as ECMAScript Number.prototype.toString
// for finite doubles, which is what browser-side callers expect to see.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
