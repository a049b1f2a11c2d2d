// Package pattern wraps the regex engine used by the tokenizer.
//
// Grammar patterns need backreferences, lookahead and inline flags, which
// the stdlib engine does not support, so compilation goes through
// dlclark/regexp2. A begin pattern's captures can be spliced into the
// matching end pattern as escaped literals before compilation
// (ExpandBackrefs), and every compiled matcher is cached by its effective
// source so long-running sessions never recompile per line.
//
// All offsets are rune offsets; the tokenizer works in runes end to end.
package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/zjrosen/prism/internal/cachemanager"
	"github.com/zjrosen/prism/internal/log"
)

// NeverSource is a sub-pattern that can never match (empty negative
// lookahead). Unresolved backreferences and rejected rule patterns
// degrade to this instead of failing the whole grammar.
const NeverSource = `(?!)`

// PatternError reports a pattern the underlying engine rejected.
// It surfaces at grammar compile time, never during a scan.
type PatternError struct {
	Source string
	Err    error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern %q: %v", e.Source, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Matcher is a compiled pattern.
type Matcher struct {
	source string
	re     *regexp2.Regexp
}

// Source returns the effective source the matcher was compiled from.
// Two states with the same substituted end source compare equal, so this
// participates in state equality for incremental rescans.
func (m *Matcher) Source() string {
	if m == nil {
		return ""
	}
	return m.source
}

// Group is one capture group span of a match. Start and End are rune
// offsets into the searched text, half-open.
type Group struct {
	Num   int
	Start int
	End   int
	Text  string
}

// Match is the result of a successful search.
type Match struct {
	Start  int
	End    int
	groups []Group
}

// Group returns the capture group with the given number, if it matched.
func (m *Match) Group(num int) (Group, bool) {
	for _, g := range m.groups {
		if g.Num == num {
			return g, true
		}
	}
	return Group{}, false
}

// Groups returns all matched capture groups in group-number order,
// excluding group 0 (the whole match).
func (m *Match) Groups() []Group {
	return m.groups
}

var matchers = cachemanager.NewInMemoryCacheManager[string, *Matcher](
	"pattern", cachemanager.NoExpiration, 0,
)

// Compile compiles source, reusing a cached matcher when one exists for
// the same effective source. Engine rejections come back as *PatternError.
func Compile(source string) (*Matcher, error) {
	ctx := context.Background()
	if m, ok := matchers.Get(ctx, source); ok {
		return m, nil
	}

	re, err := regexp2.Compile(source, regexp2.None)
	if err != nil {
		return nil, &PatternError{Source: source, Err: err}
	}

	m := &Matcher{source: source, re: re}
	matchers.Set(ctx, source, m, cachemanager.NoExpiration)
	return m, nil
}

// Never returns a matcher that can never match.
func Never() *Matcher {
	m, err := Compile(NeverSource)
	if err != nil {
		// The never pattern is a constant; the engine accepts it.
		panic(err)
	}
	return m
}

// ExpandBackrefs substitutes backreference placeholders (`\1`, `\2`, ...)
// in source with the escaped literal text captured by prior. A placeholder
// with no corresponding capture becomes a never-matching sub-pattern so the
// rule fails safe. Other escape sequences pass through untouched.
func ExpandBackrefs(source string, prior *Match) string {
	if !strings.Contains(source, `\`) {
		return source
	}

	var b strings.Builder
	runes := []rune(source)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '\\' || i+1 >= len(runes) {
			b.WriteRune(runes[i])
			continue
		}
		next := runes[i+1]
		if next < '0' || next > '9' {
			// Not a backreference; keep the escape as written.
			b.WriteRune(runes[i])
			b.WriteRune(next)
			i++
			continue
		}

		num := 0
		j := i + 1
		for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
			num = num*10 + int(runes[j]-'0')
			j++
		}
		i = j - 1

		if prior != nil {
			if g, ok := prior.Group(num); ok {
				b.WriteString(regexp2.Escape(g.Text))
				continue
			}
		}
		b.WriteString(NeverSource)
	}
	return b.String()
}

// Search finds the first match starting at or after from. A nil result
// means no match before the end of text. Engine faults (e.g. a runtime
// limit) are logged and treated as no match so one bad line cannot abort
// the scan.
func (m *Matcher) Search(text []rune, from int) (*Match, bool) {
	if m == nil || from > len(text) {
		return nil, false
	}

	found, err := m.re.FindRunesMatchStartingAt(text, from)
	if err != nil {
		log.ErrorErr(log.CatPattern, "search failed", err, "source", m.source)
		return nil, false
	}
	if found == nil {
		return nil, false
	}

	res := &Match{
		Start: found.Index,
		End:   found.Index + found.Length,
	}
	for i, g := range found.Groups() {
		if i == 0 || len(g.Captures) == 0 {
			continue
		}
		cap := g.Captures[len(g.Captures)-1]
		res.groups = append(res.groups, Group{
			Num:   i,
			Start: cap.Index,
			End:   cap.Index + cap.Length,
			Text:  cap.String(),
		})
	}
	return res, true
}
