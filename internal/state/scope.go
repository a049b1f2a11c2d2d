// Package state holds the tokenizer's persistent scan state: an immutable
// stack of open rule contexts and the scope-name chain attached to each.
// Push and pop share structure with the previous state, so keeping a
// snapshot per line for incremental rescans costs one pointer, not a copy.
package state

// ScopeChain is a persistent, ordered list of scope names, innermost last.
// Extending it is O(1) and shares the ancestor chain.
type ScopeChain struct {
	name   string
	parent *ScopeChain
	size   int
}

// RootScope starts a chain with a single name, normally the grammar's
// scopeName.
func RootScope(name string) *ScopeChain {
	return &ScopeChain{name: name, size: 1}
}

// Push returns a new chain extended with name. The receiver is unchanged.
func (c *ScopeChain) Push(name string) *ScopeChain {
	size := 1
	if c != nil {
		size = c.size + 1
	}
	return &ScopeChain{name: name, parent: c, size: size}
}

// Len returns the number of names in the chain.
func (c *ScopeChain) Len() int {
	if c == nil {
		return 0
	}
	return c.size
}

// Slice materializes the chain outermost-first.
func (c *ScopeChain) Slice() []string {
	if c == nil {
		return nil
	}
	out := make([]string, c.size)
	for n := c; n != nil; n = n.parent {
		out[n.size-1] = n.name
	}
	return out
}

// Equal reports whether two chains hold the same names in the same order.
// Shared ancestry short-circuits on pointer equality.
func (c *ScopeChain) Equal(o *ScopeChain) bool {
	for c != o {
		if c == nil || o == nil || c.size != o.size || c.name != o.name {
			return false
		}
		c, o = c.parent, o.parent
	}
	return true
}
