package state

import (
	"errors"

	"github.com/zjrosen/prism/internal/pattern"
)

// ErrStackUnderflow reports a pop attempted at the root context. Callers
// recover by keeping the clamped state; a malformed line must not corrupt
// the rest of the document.
var ErrStackUnderflow = errors.New("state: stack underflow")

// Context is one open rule context on the stack.
type Context struct {
	// Rule is the rule's index in the owning grammar's rule table.
	Rule int
	// Owner is the scopeName of the grammar the rule belongs to. Nested
	// grammars push contexts owned by the embedded grammar.
	Owner string
	// Scopes is the scope chain in effect while this context is open.
	Scopes *ScopeChain
	// End is the context's end matcher, compiled after backreference
	// substitution from the begin match. Nil for while contexts and the
	// root.
	End *pattern.Matcher
	// While is the per-line continuation matcher. Nil unless the context
	// was opened by a begin/while rule.
	While *pattern.Matcher
	// EndFirst makes the end matcher win an exact-offset tie against the
	// context's nested patterns.
	EndFirst bool
}

func (c Context) equal(o Context) bool {
	return c.Rule == o.Rule &&
		c.Owner == o.Owner &&
		c.End.Source() == o.End.Source() &&
		c.While.Source() == o.While.Source() &&
		c.EndFirst == o.EndFirst &&
		c.Scopes.Equal(o.Scopes)
}

type node struct {
	ctx    Context
	parent *node
	depth  int
}

// State is an immutable stack of contexts. The zero value is invalid; use
// New with the grammar's root context.
type State struct {
	top *node
}

// New returns a state holding only the root context.
func New(root Context) State {
	return State{top: &node{ctx: root, depth: 1}}
}

// Push returns a new state with ctx on top. O(1), shares the suffix.
func (s State) Push(ctx Context) State {
	return State{top: &node{ctx: ctx, parent: s.top, depth: s.Depth() + 1}}
}

// Pop returns the state below the top context. Popping the root returns
// the state unchanged along with ErrStackUnderflow.
func (s State) Pop() (State, error) {
	if s.top == nil || s.top.parent == nil {
		return s, ErrStackUnderflow
	}
	return State{top: s.top.parent}, nil
}

// Top returns the innermost open context.
func (s State) Top() Context {
	if s.top == nil {
		return Context{}
	}
	return s.top.ctx
}

// Depth returns the number of open contexts.
func (s State) Depth() int {
	if s.top == nil {
		return 0
	}
	return s.top.depth
}

// Truncate pops until at most depth contexts remain.
func (s State) Truncate(depth int) State {
	for s.top != nil && s.top.depth > depth && s.top.parent != nil {
		s.top = s.top.parent
	}
	return s
}

// Contexts returns the stack outermost-first.
func (s State) Contexts() []Context {
	out := make([]Context, s.Depth())
	for n := s.top; n != nil; n = n.parent {
		out[n.depth-1] = n.ctx
	}
	return out
}

// Equal reports structural equality, compared top-down. States built from
// a shared snapshot short-circuit on pointer equality, which keeps
// incremental-rescan cache checks cheap.
func (s State) Equal(o State) bool {
	a, b := s.top, o.top
	for a != b {
		if a == nil || b == nil || a.depth != b.depth || !a.ctx.equal(b.ctx) {
			return false
		}
		a, b = a.parent, b.parent
	}
	return true
}
