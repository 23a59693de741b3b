package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_JSON(t *testing.T) {
	v, err := Decode([]byte(`{"items": [{"name": "Ada", "age": 41, "member": true, "city": null}]}`))
	require.NoError(t, err)

	items, ok := v.Get("items")
	require.True(t, ok)
	require.Equal(t, KindSequence, items.Kind())

	elems, _ := items.Elements()
	require.Len(t, elems, 1)

	person := elems[0]
	name, _ := person.Get("name")
	text, ok := name.Text()
	assert.True(t, ok)
	assert.Equal(t, "Ada", text)

	age, _ := person.Get("age")
	f, ok := age.Float()
	assert.True(t, ok)
	assert.Equal(t, 41.0, f)

	member, _ := person.Get("member")
	b, ok := member.Boolean()
	assert.True(t, ok)
	assert.True(t, b)

	city, _ := person.Get("city")
	assert.True(t, city.IsNull())
}

func TestDecode_PreservesInsertionOrder(t *testing.T) {
	v, err := Decode([]byte(`{"b": 1, "a": 2, "c": 3}`))
	require.NoError(t, err)

	entries, ok := v.Entries()
	require.True(t, ok)
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{"b", "a", "c"}, keys)
}

func TestDecode_TabIndentedJSON(t *testing.T) {
	doc := "{\n\t\"name\": \"x\",\n\t\"list\": [\n\t\t1,\n\t\t2\n\t]\n}"
	v, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, `<ul class="hash"><li><strong>list:</strong> <ol class="array"><li>1</li><li>2</li></ol></li><li><strong>name:</strong> x</li></ul>`, Render(v, Options{}))
}

func TestDecode_JSONEscapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"escaped slash", `{"url":"https:\/\/example.com"}`, "https://example.com"},
		{"surrogate pair", `{"url":"\ud83d\ude00"}`, "\U0001F600"},
		{"nul", `{"url":"a\u0000b"}`, "a\x00b"},
		{"escaped tab", `{"url":"a\tb"}`, "a\tb"},
		{"quotes and backslash", `{"url":"\"q\" \\ end"}`, `"q" \ end`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode([]byte(tt.doc))
			require.NoError(t, err)
			url, ok := v.Get("url")
			require.True(t, ok)
			text, _ := url.Text()
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestDecode_MatchesEncodingJSON(t *testing.T) {
	docs := []string{
		`{"a":"https:\/\/x.io\/p?q=1","b":["\ud83d\ude00","\u00e9t\u00e9"],"c":{"d":"\b\f\n\r\t"}}`,
		`[null,true,false,0,-0.5,1e300,"\u0000","\/"]`,
		"{\n\t\"deep\": [[[{\"k\": \"\\u2028\"}]]]\n}",
	}

	for _, doc := range docs {
		var decoded any
		require.NoError(t, json.Unmarshal([]byte(doc), &decoded))
		want, err := FromAny(decoded)
		require.NoError(t, err)

		got, err := Decode([]byte(doc))
		require.NoError(t, err, doc)
		assert.True(t, Equal(want, got), doc)
		assert.Equal(t, Render(want, Options{}), Render(got, Options{}), doc)
	}
}

func TestDecode_YAMLFlowKeepsTabs(t *testing.T) {
	v, err := Decode([]byte("['a\tb', c]"))
	require.NoError(t, err)
	assert.True(t, Equal(Seq(String("a\tb"), String("c")), v))

	v, err = Decode([]byte("{a: \"x\ty\"}"))
	require.NoError(t, err)
	assert.True(t, Equal(Map(KV("a", String("x\ty"))), v))
}

func TestDecode_AliasExpansionLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("l0: &l0 [x, x, x, x, x, x, x, x, x, x]\n")
	for i := 1; i < 9; i++ {
		refs := strings.TrimSuffix(strings.Repeat(fmt.Sprintf("*l%d, ", i-1), 10), ", ")
		fmt.Fprintf(&b, "l%d: &l%d [%s]\n", i, i, refs)
	}

	_, err := Decode([]byte(b.String()))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "expands beyond")
}

func TestDecode_MergeKeys(t *testing.T) {
	doc := `
base: &base {name: base, size: 1}
extra: &extra {size: 2, color: red}
one:
  <<: *base
  size: 3
many:
  <<: [*extra, *base]
  name: mine
`
	v, err := Decode([]byte(doc))
	require.NoError(t, err)

	one, _ := v.Get("one")
	entries, _ := one.Entries()
	assert.Equal(t, []Entry{KV("name", String("base")), KV("size", Int(3))}, entries)

	many, _ := v.Get("many")
	entries, _ = many.Entries()
	assert.Equal(t, []Entry{KV("size", Int(2)), KV("color", String("red")), KV("name", String("mine"))}, entries)

	literal, err := Decode([]byte("'<<': 1\n"))
	require.NoError(t, err)
	assert.True(t, Equal(Map(KV("<<", Int(1))), literal))

	_, err = Decode([]byte("a:\n  <<: 1\n"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Decode([]byte("b: &b {k: 1}\na:\n  <<: *b\n  x: 1\n  x: 2\n"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDecode_YAML(t *testing.T) {
	doc := `
items:
  - name: Ada
    age: 41
    since: 2024-01-02
    tags: [a, b]
    ratio: .5
    quoted: "true"
    plain: yes
`
	v, err := Decode([]byte(doc))
	require.NoError(t, err)

	got := Render(v, Options{PriorityKeys: []string{"name"}, IgnoreSingleKeyNames: []string{"items"}})
	assert.Equal(t,
		`<ol class="array"><li><ul class="hash">`+
			`<li><strong>name:</strong> Ada</li>`+
			`<li><strong>age:</strong> 41</li>`+
			`<li><strong>plain:</strong> yes</li>`+
			`<li><strong>quoted:</strong> true</li>`+
			`<li><strong>ratio:</strong> 0.5</li>`+
			`<li><strong>since:</strong> 2024-01-02</li>`+
			`<li><strong>tags:</strong> <ol class="array"><li>a</li><li>b</li></ol></li>`+
			`</ul></li></ol>`,
		got)

	items, _ := v.Get("items")
	elems, _ := items.Elements()
	quoted, _ := elems[0].Get("quoted")
	assert.Equal(t, KindString, quoted.Kind())
}

func TestDecode_Aliases(t *testing.T) {
	doc := `
base: &b {x: 1}
copy: *b
`
	v, err := Decode([]byte(doc))
	require.NoError(t, err)

	base, _ := v.Get("base")
	cp, _ := v.Get("copy")
	assert.True(t, Equal(base, cp))
}

func TestDecode_Scalars(t *testing.T) {
	tests := []struct {
		doc  string
		kind Kind
		text string
	}{
		{"42", KindNumber, "42"},
		{"-1.25", KindNumber, "-1.25"},
		{"1e21", KindNumber, "1e+21"},
		{"true", KindBool, "true"},
		{"null", KindNull, ""},
		{"~", KindNull, ""},
		{`"hi"`, KindString, "hi"},
		{"hello world", KindString, "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			v, err := Decode([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.text, Render(v, Options{}))
		})
	}
}

func TestDecode_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"syntax error", `{"a": [1, 2}`},
		{"duplicate key", `{"a": 1, "a": 2}`},
		{"empty key", `{"": 1}`},
		{"non-scalar key", "? [a, b]\n: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestFromAny(t *testing.T) {
	var decoded any
	require.NoError(t, json.Unmarshal([]byte(`{"z": [1, "two", null, false], "a": {"n": 1.5}}`), &decoded))

	fromJSON, err := FromAny(decoded)
	require.NoError(t, err)

	fromDoc, err := Decode([]byte(`{"z": [1, "two", null, false], "a": {"n": 1.5}}`))
	require.NoError(t, err)

	assert.True(t, Equal(fromJSON, fromDoc))
	assert.Equal(t, Render(fromDoc, Options{}), Render(fromJSON, Options{}))

	entries, _ := fromJSON.Entries()
	assert.Equal(t, "a", entries[0].Key)
}

func TestFromAny_Types(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"int", 3, Int(3)},
		{"int64", int64(-9), Int(-9)},
		{"uint8", uint8(7), Int(7)},
		{"float32", float32(0.5), Number(0.5)},
		{"json number", json.Number("12.5"), Number(12.5)},
		{"strings", []string{"a", "b"}, Seq(String("a"), String("b"))},
		{"value passthrough", Map(KV("k", Bool(true))), Map(KV("k", Bool(true)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s", Render(got, Options{}))
		})
	}
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = FromAny(map[string]any{"": 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = FromAny([]any{make(chan int)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = FromAny(json.Number("abc"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValue_Accessors(t *testing.T) {
	s := String("x")
	_, ok := s.Float()
	assert.False(t, ok)
	_, ok = s.Elements()
	assert.False(t, ok)
	_, ok = s.Entries()
	assert.False(t, ok)
	_, ok = s.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	m := Map(KV("a", Int(1)), KV("b", Int(2)), KV("a", Int(3)))
	assert.Equal(t, 2, m.Len())
	a, _ := m.Get("a")
	assert.True(t, Equal(Int(3), a))
	entries, _ := m.Entries()
	assert.Equal(t, "a", entries[0].Key)

	items := []Value{Int(1)}
	seq := Seq(items...)
	items[0] = Int(2)
	first, _ := seq.Elements()
	assert.True(t, Equal(Int(1), first[0]))

	assert.Equal(t, "mapping", KindMapping.String())
}

func TestEqual_IgnoresMappingOrder(t *testing.T) {
	a := Map(KV("x", Int(1)), KV("y", Seq(Bool(true))))
	b := Map(KV("y", Seq(Bool(true))), KV("x", Int(1)))
	assert.True(t, Equal(a, b))

	assert.False(t, Equal(a, Map(KV("x", Int(1)))))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(Seq(Int(1)), Seq(Int(2))))
}
