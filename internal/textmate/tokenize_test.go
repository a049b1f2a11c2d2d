package textmate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/prism/internal/state"
)

func TestTokenizeLine_NestedScopeChain(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"name": "tag", "begin": "<", "end": ">", "patterns": [
			{"name": "letter", "match": "b"}
		]}]
	}`)

	st, regions := g.TokenizeLine(g.RootState(), "<b>")
	require.Len(t, regions, 3)
	assert.Equal(t, []string{"source.test", "tag"}, regions[0].Scopes)
	assert.Equal(t, []string{"source.test", "tag", "letter"}, regions[1].Scopes)
	assert.Equal(t, []string{"source.test", "tag"}, regions[2].Scopes)
	assert.Equal(t, 1, st.Depth())
}

func TestTokenizeLine_EmptyLine(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"name": "tag", "begin": "<", "end": ">"}]
	}`)

	entry, _ := g.TokenizeLine(g.RootState(), "<")
	require.Equal(t, 2, entry.Depth())

	st, regions := g.TokenizeLine(entry, "")
	assert.Empty(t, regions)
	assert.True(t, st.Equal(entry))
}

func TestTokenizeLine_UnmatchedTailKeepsCurrentChain(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"name": "num", "match": "\\d+"}]
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "12 abc")
	require.Len(t, regions, 2)
	assert.Equal(t, []string{"source.test", "num"}, regions[0].Scopes)
	assert.Equal(t, Region{Start: 2, End: 6, Scopes: []string{"source.test"}}, regions[1])
}

func TestTokenizeLine_BackreferenceFence(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.fence",
		"patterns": [{
			"name": "fence",
			"begin": "^(~+)",
			"end": "^\\1$",
			"patterns": [{"name": "content", "match": "[a-z]+"}]
		}]
	}`)

	st, regions := g.TokenizeLine(g.RootState(), "~~~")
	require.Len(t, regions, 1)
	assert.Equal(t, []string{"source.fence", "fence"}, regions[0].Scopes)
	require.Equal(t, 2, st.Depth())

	st, regions = g.TokenizeLine(st, "hello")
	require.Len(t, regions, 1)
	assert.Equal(t, []string{"source.fence", "fence", "content"}, regions[0].Scopes)

	// Neither a shorter nor a longer run of tildes closes the fence.
	st, _ = g.TokenizeLine(st, "~~")
	assert.Equal(t, 2, st.Depth())
	st, _ = g.TokenizeLine(st, "~~~~")
	assert.Equal(t, 2, st.Depth())

	st, regions = g.TokenizeLine(st, "~~~")
	require.Len(t, regions, 1)
	assert.Equal(t, []string{"source.fence", "fence"}, regions[0].Scopes)
	assert.Equal(t, 1, st.Depth())
}

func TestTokenizeLine_WhileRule(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.quote",
		"patterns": [{
			"name": "quote",
			"begin": "^> ",
			"while": "^> ",
			"patterns": [{"name": "word", "match": "\\w+"}]
		}]
	}`)

	st, regions := g.TokenizeLine(g.RootState(), "> hello")
	require.Len(t, regions, 2)
	assert.Equal(t, []string{"source.quote", "quote"}, regions[0].Scopes)
	assert.Equal(t, []string{"source.quote", "quote", "word"}, regions[1].Scopes)
	require.Equal(t, 2, st.Depth())

	// The while pattern re-proves the context and consumes the marker.
	st, regions = g.TokenizeLine(st, "> more")
	require.Len(t, regions, 2)
	assert.Equal(t, Region{Start: 0, End: 2, Scopes: []string{"source.quote", "quote"}}, regions[0])
	require.Equal(t, 2, st.Depth())

	// First line that fails the while pops the context before any matching.
	st, regions = g.TokenizeLine(st, "done")
	require.Len(t, regions, 1)
	assert.Equal(t, []string{"source.quote"}, regions[0].Scopes)
	assert.Equal(t, 1, st.Depth())
}

func TestTokenizeLine_EndTieYieldsToNested(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.tie",
		"patterns": [{
			"name": "block",
			"begin": "b",
			"end": "x",
			"patterns": [{"name": "inner", "match": "x"}]
		}]
	}`)

	st, regions := g.TokenizeLine(g.RootState(), "bxx")
	require.Len(t, regions, 3)
	assert.Equal(t, []string{"source.tie", "block", "inner"}, regions[1].Scopes)
	assert.Equal(t, []string{"source.tie", "block", "inner"}, regions[2].Scopes)
	assert.Equal(t, 2, st.Depth(), "nested pattern keeps winning, block never closes")
}

func TestTokenizeLine_ApplyEndPatternFirst(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.tie",
		"patterns": [{
			"name": "block",
			"begin": "b",
			"end": "x",
			"applyEndPatternLast": 0,
			"patterns": [{"name": "inner", "match": "x"}]
		}]
	}`)

	st, regions := g.TokenizeLine(g.RootState(), "bxx")
	require.Len(t, regions, 3)
	assert.Equal(t, []string{"source.tie", "block"}, regions[1].Scopes)
	assert.Equal(t, []string{"source.tie"}, regions[2].Scopes)
	assert.Equal(t, 1, st.Depth())
}

func TestTokenizeLine_ZeroWidthMatchTerminates(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.zero",
		"patterns": [{"name": "maybe", "match": "x*"}]
	}`)

	// The rule matches zero-width at every offset; the scan must still
	// cover the line and finish.
	_, regions := g.TokenizeLine(g.RootState(), "yyy")
	require.Len(t, regions, 3)
	for i, r := range regions {
		assert.Equal(t, Region{Start: i, End: i + 1, Scopes: []string{"source.zero"}}, r)
	}

	_, regions = g.TokenizeLine(g.RootState(), "xxy")
	require.Len(t, regions, 2)
	assert.Equal(t, []string{"source.zero", "maybe"}, regions[0].Scopes)
	assert.Equal(t, Region{Start: 2, End: 3, Scopes: []string{"source.zero"}}, regions[1])
}

func TestTokenizeLine_EndAtEndOfLine(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.paren",
		"patterns": [{"name": "group", "begin": "\\(", "end": "\\)|$"}]
	}`)

	// A zero-width end at EOL closes the context without looping.
	st, regions := g.TokenizeLine(g.RootState(), "(abc")
	require.Len(t, regions, 2)
	assert.Equal(t, Region{Start: 0, End: 1, Scopes: []string{"source.paren", "group"}}, regions[0])
	assert.Equal(t, Region{Start: 1, End: 4, Scopes: []string{"source.paren", "group"}}, regions[1])
	assert.Equal(t, 1, st.Depth())
}

func TestTokenizeLine_Captures(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.kv",
		"patterns": [{
			"name": "pair",
			"match": "(\\w+)=(\\w+)",
			"captures": {"1": {"name": "key"}, "2": {"name": "value"}}
		}]
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "ab=cd")
	require.Len(t, regions, 3)
	assert.Equal(t, Region{Start: 0, End: 2, Scopes: []string{"source.kv", "pair", "key"}}, regions[0])
	assert.Equal(t, Region{Start: 2, End: 3, Scopes: []string{"source.kv", "pair"}}, regions[1])
	assert.Equal(t, Region{Start: 3, End: 5, Scopes: []string{"source.kv", "pair", "value"}}, regions[2])
}

func TestTokenizeLine_CaptureZeroExtendsBase(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.kv",
		"patterns": [{
			"match": "(\\w+)=",
			"captures": {"0": {"name": "assignment"}, "1": {"name": "key"}}
		}]
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "a=")
	require.Len(t, regions, 2)
	assert.Equal(t, []string{"source.kv", "assignment", "key"}, regions[0].Scopes)
	assert.Equal(t, []string{"source.kv", "assignment"}, regions[1].Scopes)
}

func TestTokenizeLine_UnicodeOffsetsAreRunes(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"name": "word", "match": "héllo"}]
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "héllo wörld")
	require.Len(t, regions, 2)
	assert.Equal(t, Region{Start: 0, End: 5, Scopes: []string{"source.test", "word"}}, regions[0])
	assert.Equal(t, Region{Start: 5, End: 11, Scopes: []string{"source.test"}}, regions[1])
}

type mapSource map[string]*Grammar

func (s mapSource) Lookup(scopeName string) (*Grammar, bool) {
	g, ok := s[scopeName]
	return g, ok
}

func TestTokenizeLine_ExternalGrammar(t *testing.T) {
	inner := mustCompile(t, `{
		"scopeName": "source.b",
		"patterns": [{"name": "bee", "match": "x+"}]
	}`)
	src := mapSource{"source.b": inner}

	outer, err := Compile([]byte(`{
		"scopeName": "source.a",
		"patterns": [{
			"name": "block",
			"begin": "\\{",
			"end": "\\}",
			"patterns": [{"include": "source.b"}]
		}]
	}`), src)
	require.NoError(t, err)

	_, regions := outer.TokenizeLine(outer.RootState(), "{xx}")
	require.Len(t, regions, 3)
	assert.Equal(t, []string{"source.a", "block"}, regions[0].Scopes)
	assert.Equal(t, []string{"source.a", "block", "bee"}, regions[1].Scopes)
	assert.Equal(t, []string{"source.a", "block"}, regions[2].Scopes)
}

func TestTokenizeLine_MissingExternalGrammarDegrades(t *testing.T) {
	g, err := Compile([]byte(`{
		"scopeName": "source.a",
		"patterns": [{
			"name": "block",
			"begin": "\\{",
			"end": "\\}",
			"patterns": [{"include": "source.nope"}]
		}]
	}`), mapSource{})
	require.NoError(t, err)

	// The unresolvable reference matches nothing; everything else works.
	st, regions := g.TokenizeLine(g.RootState(), "{q}")
	require.Len(t, regions, 3)
	assert.Equal(t, []string{"source.a", "block"}, regions[1].Scopes)
	assert.Equal(t, 1, st.Depth())
}

// propertyGrammar mixes begin/end nesting, an EOL-closing group and plain
// matches so random inputs exercise most driver paths.
const propertyGrammar = `{
	"scopeName": "source.prop",
	"patterns": [
		{"name": "tag", "begin": "<", "end": ">", "patterns": [{"include": "$self"}]},
		{"name": "group", "begin": "\\(", "end": "\\)|$", "patterns": [{"include": "$self"}]},
		{"name": "word", "match": "[a-z]+"}
	]
}`

func propertyLines(t *rapid.T) []string {
	line := rapid.StringOfN(rapid.RuneFrom([]rune("ab <>()~")), 0, 12, -1)
	return rapid.SliceOfN(line, 1, 8).Draw(t, "lines")
}

func TestProperty_RegionsCoverEveryLine(t *testing.T) {
	g := mustCompile(t, propertyGrammar)

	rapid.Check(t, func(t *rapid.T) {
		st := g.RootState()
		for _, line := range propertyLines(t) {
			next, regions := g.TokenizeLine(st, line)

			pos := 0
			for _, r := range regions {
				if r.Start != pos || r.End <= r.Start {
					t.Fatalf("line %q: region %+v breaks coverage at %d", line, r, pos)
				}
				pos = r.End
			}
			if pos != len([]rune(line)) {
				t.Fatalf("line %q: regions end at %d, want %d", line, pos, len([]rune(line)))
			}
			st = next
		}
	})
}

func TestProperty_TokenizeLineIsDeterministic(t *testing.T) {
	g := mustCompile(t, propertyGrammar)

	rapid.Check(t, func(t *rapid.T) {
		st := g.RootState()
		for _, line := range propertyLines(t) {
			next1, regions1 := g.TokenizeLine(st, line)
			next2, regions2 := g.TokenizeLine(st, line)

			if !next1.Equal(next2) {
				t.Fatalf("line %q: end states differ between runs", line)
			}
			if len(regions1) != len(regions2) {
				t.Fatalf("line %q: region counts differ", line)
			}
			for i := range regions1 {
				if regions1[i].Start != regions2[i].Start || regions1[i].End != regions2[i].End {
					t.Fatalf("line %q: region %d differs", line, i)
				}
			}
			st = next1
		}
	})
}

func TestProperty_RestartFromCachedState(t *testing.T) {
	g := mustCompile(t, propertyGrammar)

	rapid.Check(t, func(t *rapid.T) {
		lines := propertyLines(t)

		states := make([]state.State, len(lines))
		regions := make([][]Region, len(lines))
		st := g.RootState()
		for i, line := range lines {
			st, regions[i] = g.TokenizeLine(st, line)
			states[i] = st
		}

		// Resuming from any cached state reproduces the full-scan output.
		cut := rapid.IntRange(1, len(lines)).Draw(t, "cut")
		st = states[cut-1]
		for i := cut; i < len(lines); i++ {
			next, got := g.TokenizeLine(st, lines[i])
			if !next.Equal(states[i]) {
				t.Fatalf("line %d: resumed state diverges", i)
			}
			if len(got) != len(regions[i]) {
				t.Fatalf("line %d: resumed regions diverge", i)
			}
			st = next
		}
	})
}
