package render

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var keyGen = rapid.SampledFrom([]string{
	"name", "age", "city", "items", "data", "comments", "Comments", " comments ",
	"zeta", "Alpha", "beta", "notes", "id",
})

func scalarGen() *rapid.Generator[Value] {
	return rapid.OneOf(
		rapid.Just(Null()),
		rapid.Map(rapid.StringMatching(`[a-z <>&]{0,8}`), String),
		rapid.Map(rapid.Int64Range(-1_000_000, 1_000_000), Int),
		rapid.Map(rapid.Float64(), Number),
		rapid.Map(rapid.Bool(), Bool),
	)
}

func valueGen(depth int) *rapid.Generator[Value] {
	if depth == 0 {
		return scalarGen()
	}
	return rapid.Custom(func(t *rapid.T) Value {
		switch rapid.IntRange(0, 2).Draw(t, "shape") {
		case 0:
			items := rapid.SliceOfN(valueGen(depth-1), 0, 4).Draw(t, "items")
			return Seq(items...)
		case 1:
			keys := rapid.SliceOfNDistinct(keyGen, 0, 5, rapid.ID[string]).Draw(t, "keys")
			entries := make([]Entry, len(keys))
			for i, k := range keys {
				entries[i] = KV(k, valueGen(depth-1).Draw(t, "value"))
			}
			return Map(entries...)
		default:
			return scalarGen().Draw(t, "scalar")
		}
	})
}

func optionsGen() *rapid.Generator[Options] {
	return rapid.Custom(func(t *rapid.T) Options {
		return Options{
			PriorityKeys:         rapid.SliceOfN(keyGen, 0, 4).Draw(t, "priority"),
			IgnoreSingleKeyNames: rapid.SliceOfN(keyGen, 0, 2).Draw(t, "ignore"),
			EscapeHTML:           rapid.Bool().Draw(t, "escape"),
		}
	})
}

func TestRenderProperty_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := valueGen(3).Draw(rt, "value")
		opts := optionsGen().Draw(rt, "opts")

		assert.Equal(rt, Render(v, opts), Render(v, opts))
	})
}

func TestRenderProperty_InsertionOrderIrrelevant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		keys := rapid.SliceOfNDistinct(keyGen, 0, 8, rapid.ID[string]).Draw(rt, "keys")
		entries := make([]Entry, len(keys))
		for i, k := range keys {
			entries[i] = KV(k, valueGen(1).Draw(rt, "value"))
		}
		shuffled := rapid.Permutation(entries).Draw(rt, "shuffled")
		opts := optionsGen().Draw(rt, "opts")

		assert.Equal(rt, Render(Map(entries...), opts), Render(Map(shuffled...), opts))
	})
}

func TestRenderProperty_EnvelopeIsInvisible(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		inner := valueGen(2).Draw(rt, "inner")
		opts := optionsGen().Draw(rt, "opts")
		opts.IgnoreSingleKeyNames = append(opts.IgnoreSingleKeyNames, "items")

		assert.Equal(rt, Render(inner, opts), Render(Map(KV("items", inner)), opts))
	})
}

func TestRenderProperty_KeyOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		// lowercase ASCII keys collate in byte order, which lets the test
		// compute the expected order without a collator
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 1, 10, rapid.ID[string]).Draw(rt, "keys")
		withComments := rapid.Bool().Draw(rt, "comments")
		priority := rapid.SliceOfNDistinct(rapid.SampledFrom(keys), 0, len(keys), rapid.ID[string]).Draw(rt, "priority")

		entries := make([]Entry, 0, len(keys)+1)
		for i, k := range keys {
			entries = append(entries, KV(k, Int(int64(i))))
		}
		if withComments {
			entries = append(entries, KV("Comments", String("c")))
		}

		got := renderedKeys(Render(Map(entries...), Options{PriorityKeys: priority}))

		var want []string
		seen := make(map[string]bool)
		for _, k := range priority {
			want = append(want, k)
			seen[k] = true
		}
		var rest []string
		for _, k := range keys {
			if !seen[k] {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		want = append(want, rest...)
		if withComments {
			want = append(want, "Comments")
		}

		assert.Equal(rt, want, got)
	})
}

func TestRenderProperty_ListShape(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		items := rapid.SliceOfN(rapid.Map(rapid.Int64Range(-100, 100), Int), 0, 6).Draw(rt, "items")
		got := Render(Seq(items...), Options{})

		require.True(rt, strings.HasPrefix(got, `<ol class="array">`))
		require.True(rt, strings.HasSuffix(got, `</ol>`))
		want := len(items)
		if want == 0 {
			want = 1
		}
		assert.Equal(rt, want, strings.Count(got, "<li>"))
	})
}
