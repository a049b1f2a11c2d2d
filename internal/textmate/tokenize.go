package textmate

import (
	"github.com/zjrosen/prism/internal/log"
	"github.com/zjrosen/prism/internal/pattern"
	"github.com/zjrosen/prism/internal/state"
)

// TokenizeLine scans one line under the given entry state and returns the
// state to carry into the next line plus the ordered region sequence for
// this one. The call is synchronous, does no I/O, and leaves the grammar
// untouched; any number of sessions may run concurrently over one Grammar.
func (g *Grammar) TokenizeLine(st state.State, line string) (state.State, []Region) {
	runes := []rune(line)
	regions := make([]Region, 0, 8)
	pos := 0

	// A while context must re-prove itself at the start of every line,
	// outermost first. The first failure pops it and everything inside it
	// before any matching is attempted.
	for depth, ctx := range st.Contexts() {
		if ctx.While == nil {
			continue
		}
		m, ok := ctx.While.Search(runes, pos)
		if !ok || m.Start != pos {
			st = st.Truncate(depth) // depth is 0-based: keep everything below
			break
		}
		if m.End > pos {
			regions = append(regions, Region{Start: pos, End: m.End, Scopes: ctx.Scopes.Slice()})
			pos = m.End
		}
	}

	for pos < len(runes) {
		cands := g.candidates(st)

		var best *pattern.Match
		var won candidate
		for _, c := range cands {
			m, ok := c.matcher.Search(runes, pos)
			if !ok {
				continue
			}
			if best == nil || m.Start < best.Start {
				best, won = m, c
			}
			if best.Start == pos {
				// Searches never start before pos, so an exact hit by an
				// earlier-listed candidate cannot be beaten.
				break
			}
		}

		if best == nil {
			regions = append(regions, Region{Start: pos, End: len(runes), Scopes: st.Top().Scopes.Slice()})
			pos = len(runes)
			break
		}

		if best.Start > pos {
			regions = append(regions, Region{Start: pos, End: best.Start, Scopes: st.Top().Scopes.Slice()})
			pos = best.Start
		}

		st, pos = g.apply(&regions, st, won, best)

		if pos <= best.Start {
			// Zero-width match: force minimum advance so the offset
			// strictly increases and the scan terminates.
			log.Debug(log.CatScan, "zero-width match, forcing advance",
				"scope", g.ScopeName, "offset", best.Start)
			if best.Start < len(runes) {
				regions = append(regions, Region{
					Start:  best.Start,
					End:    best.Start + 1,
					Scopes: st.Top().Scopes.Slice(),
				})
			}
			pos = best.Start + 1
		}
	}

	return st, regions
}

// candidate is one matchable pattern at the current position: a reachable
// match/begin pattern, or the open context's own end pattern.
type candidate struct {
	owner   *Grammar
	id      int
	rule    Rule
	end     bool
	matcher *pattern.Matcher
}

// candidates builds the candidate set for the innermost open context. List
// order is match priority on an exact-offset tie: the end pattern is
// appended last unless the opening rule opted into EndFirst.
func (g *Grammar) candidates(st state.State) []candidate {
	ctx := st.Top()
	owner := g.resolveOwner(ctx.Owner)

	var patterns []int
	switch r := owner.Rule(ctx.Rule).(type) {
	case *BeginEndRule:
		patterns = r.Patterns
	case *BeginWhileRule:
		patterns = r.Patterns
	case *ContainerRule:
		patterns = r.Patterns
	}

	out := make([]candidate, 0, len(patterns)+1)
	if ctx.End != nil && ctx.EndFirst {
		out = append(out, candidate{end: true, matcher: ctx.End})
	}

	seen := make(map[ruleRef]bool)
	g.expand(owner, patterns, seen, &out)

	scopes := ctx.Scopes.Slice()
	for _, inj := range owner.injections {
		if inj.selector.matches(scopes) {
			g.expand(owner, []int{inj.rule}, seen, &out)
		}
	}
	if owner != g {
		for _, inj := range g.injections {
			if inj.selector.matches(scopes) {
				g.expand(g, []int{inj.rule}, seen, &out)
			}
		}
	}

	if ctx.End != nil && !ctx.EndFirst {
		out = append(out, candidate{end: true, matcher: ctx.End})
	}
	return out
}

type ruleRef struct {
	grammar *Grammar
	id      int
}

// expand flattens a pattern list into matchable candidates, following
// containers and external references. The seen set breaks include cycles;
// recursion is by name lookup, never inlining, so the walk is finite.
func (g *Grammar) expand(owner *Grammar, ids []int, seen map[ruleRef]bool, out *[]candidate) {
	for _, id := range ids {
		ref := ruleRef{grammar: owner, id: id}
		if seen[ref] {
			continue
		}
		seen[ref] = true

		switch r := owner.Rule(id).(type) {
		case *MatchRule:
			*out = append(*out, candidate{owner: owner, id: id, rule: r, matcher: r.Pattern})
		case *BeginEndRule:
			*out = append(*out, candidate{owner: owner, id: id, rule: r, matcher: r.Begin})
		case *BeginWhileRule:
			*out = append(*out, candidate{owner: owner, id: id, rule: r, matcher: r.Begin})
		case *ContainerRule:
			g.expand(owner, r.Patterns, seen, out)
		case *ExternalRule:
			other, targetID, ok := g.resolveExternal(owner, r)
			if ok {
				g.expand(other, []int{targetID}, seen, out)
			}
		}
	}
}

// resolveOwner maps a context's owner scope back to its grammar. Contexts
// pushed by embedded grammars carry that grammar's scope name.
func (g *Grammar) resolveOwner(scopeName string) *Grammar {
	if scopeName == g.ScopeName || scopeName == "" {
		return g
	}
	if g.source != nil {
		if other, ok := g.source.Lookup(scopeName); ok {
			return other
		}
	}
	log.Warn(log.CatScan, "owner grammar unavailable, using base", "scope", scopeName)
	return g
}

// resolveExternal resolves an external reference at scan time. A grammar
// the host cannot supply, or a missing fragment rule, degrades to
// match-nothing.
func (g *Grammar) resolveExternal(owner *Grammar, r *ExternalRule) (*Grammar, int, bool) {
	other := g
	switch {
	case r.Base:
		// $base: the grammar driving this session.
	case r.ScopeName == owner.ScopeName:
		other = owner
	default:
		if owner.source == nil {
			return nil, 0, false
		}
		resolved, ok := owner.source.Lookup(r.ScopeName)
		if !ok {
			return nil, 0, false
		}
		other = resolved
	}

	if r.RuleName == "" {
		return other, other.root, true
	}
	id, ok := other.repository[r.RuleName]
	if !ok {
		return nil, 0, false
	}
	return other, id, true
}

// apply executes the winning candidate: emit its regions, mutate the
// state for scope entry/exit, and return the new scan offset.
func (g *Grammar) apply(regions *[]Region, st state.State, won candidate, m *pattern.Match) (state.State, int) {
	if won.end {
		return g.applyEnd(regions, st, m)
	}

	base := st.Top().Scopes
	switch r := won.rule.(type) {
	case *MatchRule:
		chain := base
		if r.Scope != "" {
			chain = chain.Push(r.Scope)
		}
		emitCaptured(regions, m, chain, r.Captures)
		return st, m.End

	case *BeginEndRule:
		chain := base
		if r.Scope != "" {
			chain = chain.Push(r.Scope)
		}
		emitCaptured(regions, m, chain, r.BeginCaptures)

		end, err := pattern.Compile(pattern.ExpandBackrefs(r.EndSource, m))
		if err != nil {
			log.ErrorErr(log.CatScan, "end pattern rejected after substitution, scope will not close", err,
				"scope", g.ScopeName)
			end = pattern.Never()
		}
		st = st.Push(state.Context{
			Rule:     won.id,
			Owner:    won.owner.ScopeName,
			Scopes:   chain,
			End:      end,
			EndFirst: r.EndFirst,
		})
		return st, m.End

	case *BeginWhileRule:
		chain := base
		if r.Scope != "" {
			chain = chain.Push(r.Scope)
		}
		emitCaptured(regions, m, chain, r.BeginCaptures)

		while, err := pattern.Compile(pattern.ExpandBackrefs(r.WhileSource, m))
		if err != nil {
			log.ErrorErr(log.CatScan, "while pattern rejected after substitution, scope ends at line", err,
				"scope", g.ScopeName)
			while = pattern.Never()
		}
		st = st.Push(state.Context{
			Rule:   won.id,
			Owner:  won.owner.ScopeName,
			Scopes: chain,
			While:  while,
		})
		return st, m.End
	}

	// Unreachable: only matchable rules become candidates.
	return st, m.End
}

// applyEnd closes the innermost context. The end-match span keeps the
// pre-pop chain unless the rule opted out of its own scope on the closer.
func (g *Grammar) applyEnd(regions *[]Region, st state.State, m *pattern.Match) (state.State, int) {
	ctx := st.Top()

	popped, err := st.Pop()
	if err != nil {
		// A malformed line must not corrupt the rest of the document:
		// clamp to root and carry on.
		log.ErrorErr(log.CatScan, "stack underflow recovered at root", err, "scope", g.ScopeName)
		return popped, m.End
	}

	chain := ctx.Scopes
	var endCaps Captures
	if r, ok := g.resolveOwner(ctx.Owner).Rule(ctx.Rule).(*BeginEndRule); ok {
		endCaps = r.EndCaptures
		if r.EndExclusive {
			chain = popped.Top().Scopes
		}
	}
	emitCaptured(regions, m, chain, endCaps)

	return popped, m.End
}

// emitCaptured emits the regions for one matched span: capture-group
// sub-spans get the capture's sub-scope, uncovered stretches keep the
// span's own chain. Overlapping or out-of-order groups are skipped; spans
// are clamped to the match. A zero-width match emits nothing.
func emitCaptured(regions *[]Region, m *pattern.Match, chain *state.ScopeChain, caps Captures) {
	if m.End <= m.Start {
		return
	}
	if name, ok := caps[0]; ok && name != "" {
		chain = chain.Push(name)
	}

	cur := m.Start
	for _, grp := range m.Groups() {
		name, ok := caps[grp.Num]
		if !ok || name == "" {
			continue
		}
		start, end := grp.Start, grp.End
		if start < m.Start {
			start = m.Start
		}
		if end > m.End {
			end = m.End
		}
		if start < cur || end <= start {
			continue
		}
		if start > cur {
			*regions = append(*regions, Region{Start: cur, End: start, Scopes: chain.Slice()})
		}
		*regions = append(*regions, Region{Start: start, End: end, Scopes: chain.Push(name).Slice()})
		cur = end
	}
	if cur < m.End {
		*regions = append(*regions, Region{Start: cur, End: m.End, Scopes: chain.Slice()})
	}
}
