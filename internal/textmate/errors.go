package textmate

import "fmt"

// GrammarError reports a grammar document the compiler could not accept:
// undecodable input, a missing scopeName, or a structurally broken rule.
// Callers fall back to a passthrough (no highlighting) rendering.
type GrammarError struct {
	Reason string
	Err    error
}

func (e *GrammarError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("grammar: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("grammar: %s", e.Reason)
}

func (e *GrammarError) Unwrap() error { return e.Err }

// IncludeResolutionError reports an include reference into the local
// repository that does not exist. Raised at compile time, never during a
// scan. External grammar references are not errors; they degrade to
// match-nothing when the host cannot supply the grammar.
type IncludeResolutionError struct {
	Include string
}

func (e *IncludeResolutionError) Error() string {
	return fmt.Sprintf("grammar: unresolvable include %q", e.Include)
}
