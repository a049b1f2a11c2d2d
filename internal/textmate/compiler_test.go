package textmate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, doc string) *Grammar {
	t.Helper()
	g, err := Compile([]byte(doc), nil)
	require.NoError(t, err)
	return g
}

func TestCompile_RepositoryInclude(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"include": "#a"}],
		"repository": {"a": {"name": "a", "match": "x"}}
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "x")
	require.Len(t, regions, 1)
	assert.Equal(t, 0, regions[0].Start)
	assert.Equal(t, 1, regions[0].End)
	assert.Equal(t, []string{"source.test", "a"}, regions[0].Scopes)
}

func TestCompile_MissingIncludeFailsAtCompileTime(t *testing.T) {
	_, err := Compile([]byte(`{
		"scopeName": "source.test",
		"patterns": [{"include": "#missing"}]
	}`), nil)
	require.Error(t, err)

	var incErr *IncludeResolutionError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, "#missing", incErr.Include)
}

func TestCompile_SelfReferenceIsLegal(t *testing.T) {
	// A recursive include must compile by name lookup, not inlining.
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"include": "#expr"}],
		"repository": {
			"expr": {
				"name": "expr",
				"begin": "\\(",
				"end": "\\)",
				"patterns": [{"include": "#expr"}, {"name": "num", "match": "\\d+"}]
			}
		}
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "(1(2))")
	want := [][]string{
		{"source.test", "expr"},                 // (
		{"source.test", "expr", "num"},          // 1
		{"source.test", "expr", "expr"},         // (
		{"source.test", "expr", "expr", "num"},  // 2
		{"source.test", "expr", "expr"},         // )
		{"source.test", "expr"},                 // )
	}
	require.Len(t, regions, len(want))
	for i, scopes := range want {
		assert.Equal(t, scopes, regions[i].Scopes, "region %d", i)
	}
}

func TestCompile_AliasRepositoryEntry(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"include": "#a"}, {"include": "#b"}],
		"repository": {
			"a": {"include": "#shared"},
			"b": {"include": "#shared"},
			"shared": {"name": "shared", "match": "s"}
		}
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "s")
	require.Len(t, regions, 1)
	assert.Equal(t, []string{"source.test", "shared"}, regions[0].Scopes)
}

func TestCompile_UnknownKeysIgnored(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"fileTypes": ["test"],
		"firstLineMatch": "#!",
		"somethingInvented": {"nested": true},
		"patterns": [{"name": "word", "match": "\\w+", "disabled": 0}]
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "ok")
	require.Len(t, regions, 1)
	assert.Equal(t, []string{"source.test", "word"}, regions[0].Scopes)
}

func TestCompile_YAMLDocument(t *testing.T) {
	g := mustCompile(t, `
scopeName: source.yamltest
patterns:
  - name: comment.line
    match: "#.*"
`)

	_, regions := g.TokenizeLine(g.RootState(), "# hi")
	require.Len(t, regions, 1)
	assert.Equal(t, []string{"source.yamltest", "comment.line"}, regions[0].Scopes)
}

func TestCompile_MalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not a mapping", doc: `[1, 2, 3]`},
		{name: "missing scopeName", doc: `{"patterns": []}`},
		{name: "begin without end or while", doc: `{
			"scopeName": "source.test",
			"patterns": [{"begin": "<"}]
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.doc), nil)
			require.Error(t, err)

			var gerr *GrammarError
			assert.ErrorAs(t, err, &gerr)
		})
	}
}

func TestCompile_RejectedPatternDegradesToNeverMatching(t *testing.T) {
	// The broken rule must not take the grammar down, and must never match.
	g, err := Compile([]byte(`{
		"scopeName": "source.test",
		"patterns": [
			{"name": "broken", "match": "(unclosed"},
			{"name": "word", "match": "\\w+"}
		]
	}`), nil)
	require.NoError(t, err)

	_, regions := g.TokenizeLine(g.RootState(), "abc")
	require.Len(t, regions, 1)
	assert.Equal(t, []string{"source.test", "word"}, regions[0].Scopes)
}

func TestCompile_ImmutableAcrossSessions(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"name": "tag", "begin": "<", "end": ">", "patterns": [
			{"name": "letter", "match": "b"}
		]}]
	}`)

	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			st := g.RootState()
			for range 50 {
				st, _ = g.TokenizeLine(st, "<b><b>")
			}
		}()
	}
	for range 8 {
		<-done
	}
}

func TestSelector_Matches(t *testing.T) {
	tests := []struct {
		selector string
		scopes   []string
		want     bool
	}{
		{"source.test", []string{"source.test"}, true},
		{"source", []string{"source.test"}, true},
		{"source.other", []string{"source.test"}, false},
		{"source.test string", []string{"source.test", "string.quoted"}, true},
		{"string source.test", []string{"source.test", "string.quoted"}, false},
		{"L:source.test", []string{"source.test"}, true},
		{"text, source.test", []string{"source.test"}, true},
		{"text, markup", []string{"source.test"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			sel := parseSelector(tt.selector)
			assert.Equal(t, tt.want, sel.matches(tt.scopes))
		})
	}
}

func TestCompile_Injections(t *testing.T) {
	g := mustCompile(t, `{
		"scopeName": "source.test",
		"patterns": [{"name": "word", "match": "[a-z]+"}],
		"injections": {
			"source.test": {"name": "mention", "match": "@[a-z]+"}
		}
	}`)

	_, regions := g.TokenizeLine(g.RootState(), "hi @bob")
	require.Len(t, regions, 3)
	assert.Equal(t, []string{"source.test", "word"}, regions[0].Scopes)
	assert.Equal(t, []string{"source.test"}, regions[1].Scopes)
	assert.Equal(t, []string{"source.test", "mention"}, regions[2].Scopes)
}
