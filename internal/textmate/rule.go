package textmate

import (
	"github.com/zjrosen/prism/internal/pattern"
	"github.com/zjrosen/prism/internal/state"
)

// Captures maps a capture-group number to the sub-scope applied to that
// group's span. Group 0 extends the scope of the whole matched span.
type Captures map[int]string

// Rule is one compiled grammar rule. Rules reference each other by index
// into the owning Grammar's rule table, never by direct ownership, so
// self-referential constructs stay finite.
type Rule interface {
	ruleScope() string
}

// MatchRule matches a single pattern within one line.
type MatchRule struct {
	Scope    string
	Pattern  *pattern.Matcher
	Captures Captures
}

func (r *MatchRule) ruleScope() string { return r.Scope }

// BeginEndRule opens a nested context on its begin pattern and closes it on
// its end pattern, possibly many lines later. EndSource is kept raw: it may
// contain backreferences into the begin match and is compiled per scope
// entry.
type BeginEndRule struct {
	Scope         string
	Begin         *pattern.Matcher
	EndSource     string
	BeginCaptures Captures
	EndCaptures   Captures
	Patterns      []int
	// EndFirst makes the end pattern win an exact-offset tie against the
	// nested patterns. Default is to yield the tie.
	EndFirst bool
	// EndExclusive tags the end-match span without the rule's own scope.
	EndExclusive bool
}

func (r *BeginEndRule) ruleScope() string { return r.Scope }

// BeginWhileRule opens a nested context on its begin pattern and keeps it
// open only while the while pattern matches at the start of each following
// line.
type BeginWhileRule struct {
	Scope         string
	Begin         *pattern.Matcher
	WhileSource   string
	BeginCaptures Captures
	Patterns      []int
}

func (r *BeginWhileRule) ruleScope() string { return r.Scope }

// ContainerRule groups nested patterns without matching anything itself.
// The grammar root and patterns-only repository entries compile to this.
type ContainerRule struct {
	Patterns []int
}

func (r *ContainerRule) ruleScope() string { return "" }

// ExternalRule references another grammar by scope name, resolved lazily
// through the host-supplied GrammarSource. A missing grammar matches
// nothing; optional embedded-language grammars are common and their
// absence is not fatal.
type ExternalRule struct {
	ScopeName string
	RuleName  string
	// Base marks a `$base` include: resolve against the grammar driving
	// the tokenization session rather than a fixed scope name.
	Base bool
}

func (r *ExternalRule) ruleScope() string { return "" }

// GrammarSource resolves a scope name to a compiled grammar. The grammar
// registry implements it; embedded-language includes go through it.
type GrammarSource interface {
	Lookup(scopeName string) (*Grammar, bool)
}

// Grammar is an immutable compiled rule graph. It is safe to share across
// unlimited concurrent tokenization sessions; nothing is mutated after
// Compile returns.
type Grammar struct {
	ScopeName string

	rules      []Rule
	root       int
	repository map[string]int
	injections []injection
	source     GrammarSource
}

type injection struct {
	selector scopeSelector
	rule     int
}

// Rule returns the rule with the given table index.
func (g *Grammar) Rule(id int) Rule { return g.rules[id] }

// RootState returns the entry state for the first line of a document.
func (g *Grammar) RootState() state.State {
	return state.New(state.Context{
		Rule:   g.root,
		Owner:  g.ScopeName,
		Scopes: state.RootScope(g.ScopeName),
	})
}
