package textmate

import (
	"sort"
	"strings"

	"github.com/zjrosen/prism/internal/log"
	"github.com/zjrosen/prism/internal/pattern"
)

// Compile turns a raw grammar document (JSON or YAML) into an immutable
// Grammar. source resolves external grammar references; nil is fine when
// the grammar embeds no other languages.
//
// The repository table is built first, then the root pattern list is
// compiled, pulling in referenced repository rules on demand. Named rules
// are memoized by name so each compiles at most once no matter how many
// include paths reach it, and a rule's table slot is reserved before its
// body compiles, which is what makes self-reference legal. Repository
// entries nothing referenced locally are compiled afterwards so other
// grammars can include them by name.
func Compile(data []byte, source GrammarSource) (*Grammar, error) {
	raw, err := parseGrammar(data)
	if err != nil {
		return nil, err
	}

	c := &compiler{
		raw: raw,
		g: &Grammar{
			ScopeName:  raw.ScopeName,
			repository: make(map[string]int, len(raw.Repository)),
			source:     source,
		},
		named: make(map[string]int, len(raw.Repository)),
	}

	// The root slot is reserved up front so $self references resolve to a
	// stable index while the pattern list is still compiling.
	c.g.root = c.reserve()
	rootPatterns, err := c.compilePatterns(raw.Patterns)
	if err != nil {
		return nil, err
	}
	c.g.rules[c.g.root] = &ContainerRule{Patterns: rootPatterns}

	// Repository entries only external grammars reference.
	names := make([]string, 0, len(raw.Repository))
	for name := range raw.Repository {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := c.compileNamed(name); err != nil {
			return nil, err
		}
	}

	// Injections join candidate expansion when their selector matches the
	// current scope chain.
	injNames := make([]string, 0, len(raw.Injections))
	for sel := range raw.Injections {
		injNames = append(injNames, sel)
	}
	sort.Strings(injNames)
	for _, sel := range injNames {
		id, err := c.compileRule(raw.Injections[sel])
		if err != nil {
			return nil, err
		}
		c.g.injections = append(c.g.injections, injection{
			selector: parseSelector(sel),
			rule:     id,
		})
	}

	log.Debug(log.CatGrammar, "grammar compiled",
		"scope", c.g.ScopeName, "rules", len(c.g.rules))
	return c.g, nil
}

type compiler struct {
	raw   *rawGrammar
	g     *Grammar
	named map[string]int
}

// add appends a rule to the table and returns its index.
func (c *compiler) add(r Rule) int {
	c.g.rules = append(c.g.rules, r)
	return len(c.g.rules) - 1
}

// reserve claims a table slot before the rule body exists, so a named rule
// can include itself.
func (c *compiler) reserve() int {
	return c.add(nil)
}

func (c *compiler) compilePatterns(raws []rawRule) ([]int, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	ids := make([]int, 0, len(raws))
	for _, r := range raws {
		id, err := c.compileRule(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *compiler) compileNamed(name string) (int, error) {
	if id, ok := c.named[name]; ok {
		return id, nil
	}
	raw, ok := c.raw.Repository[name]
	if !ok {
		return 0, &IncludeResolutionError{Include: "#" + name}
	}

	id := c.reserve()
	c.named[name] = id
	c.g.repository[name] = id

	// An entry whose body is itself an include is an alias; wrapping the
	// target keeps the reserved slot stable under self-reference.
	if raw.Include != "" {
		target, err := c.resolveInclude(raw.Include)
		if err != nil {
			return 0, err
		}
		c.g.rules[id] = &ContainerRule{Patterns: []int{target}}
		return id, nil
	}

	built, err := c.buildRule(raw)
	if err != nil {
		return 0, err
	}
	c.g.rules[id] = built
	return id, nil
}

func (c *compiler) compileRule(raw rawRule) (int, error) {
	if raw.Include != "" {
		return c.resolveInclude(raw.Include)
	}
	built, err := c.buildRule(raw)
	if err != nil {
		return 0, err
	}
	return c.add(built), nil
}

// resolveInclude maps an include reference to a rule index. Local
// references resolve now (and fail now); external scopes stay symbolic and
// resolve per scan through the grammar source.
func (c *compiler) resolveInclude(include string) (int, error) {
	switch {
	case include == "$self":
		return c.g.root, nil
	case include == "$base":
		return c.add(&ExternalRule{Base: true}), nil
	case strings.HasPrefix(include, "#"):
		return c.compileNamed(include[1:])
	}

	scope, ruleName, _ := strings.Cut(include, "#")
	if scope == c.raw.ScopeName {
		if ruleName == "" {
			return c.g.root, nil
		}
		return c.compileNamed(ruleName)
	}
	return c.add(&ExternalRule{ScopeName: scope, RuleName: ruleName}), nil
}

// buildRule compiles one non-include rule body.
func (c *compiler) buildRule(raw rawRule) (Rule, error) {
	switch {
	case raw.Match != "":
		return &MatchRule{
			Scope:    raw.Name,
			Pattern:  c.compileMatcher(raw.Match),
			Captures: captureScopes(raw.Captures),
		}, nil

	case raw.Begin != "" && raw.While != "":
		patterns, err := c.compilePatterns(raw.Patterns)
		if err != nil {
			return nil, err
		}
		return &BeginWhileRule{
			Scope:         raw.Name,
			Begin:         c.compileMatcher(raw.Begin),
			WhileSource:   raw.While,
			BeginCaptures: c.beginCaptures(raw),
			Patterns:      patterns,
		}, nil

	case raw.Begin != "" && raw.End != "":
		patterns, err := c.compilePatterns(raw.Patterns)
		if err != nil {
			return nil, err
		}
		return &BeginEndRule{
			Scope:         raw.Name,
			Begin:         c.compileMatcher(raw.Begin),
			EndSource:     raw.End,
			BeginCaptures: c.beginCaptures(raw),
			EndCaptures:   c.endCaptures(raw),
			Patterns:      patterns,
			EndFirst:      raw.ApplyEndPatternLast != nil && !bool(*raw.ApplyEndPatternLast),
			EndExclusive:  raw.EndScopeExclusive,
		}, nil

	case raw.Begin != "" || raw.End != "" || raw.While != "":
		return nil, &GrammarError{Reason: "rule with begin but no end or while"}

	default:
		patterns, err := c.compilePatterns(raw.Patterns)
		if err != nil {
			return nil, err
		}
		return &ContainerRule{Patterns: patterns}, nil
	}
}

// beginCaptures picks the effective begin captures: a plain `captures` key
// applies to both ends of a begin/end rule.
func (c *compiler) beginCaptures(raw rawRule) Captures {
	if len(raw.BeginCaptures) > 0 {
		return captureScopes(raw.BeginCaptures)
	}
	return captureScopes(raw.Captures)
}

func (c *compiler) endCaptures(raw rawRule) Captures {
	if len(raw.EndCaptures) > 0 {
		return captureScopes(raw.EndCaptures)
	}
	return captureScopes(raw.Captures)
}

// compileMatcher compiles a rule pattern. A pattern the engine rejects is
// demoted to never-matching and logged; one bad rule must not take the
// grammar down.
func (c *compiler) compileMatcher(source string) *pattern.Matcher {
	m, err := pattern.Compile(source)
	if err != nil {
		log.ErrorErr(log.CatGrammar, "rule pattern rejected, matching nothing", err,
			"scope", c.raw.ScopeName)
		return pattern.Never()
	}
	return m
}

// scopeSelector is the subset of scope-selector syntax injections use:
// comma-separated alternatives of space-separated scope prefixes, matched
// in order against the scope chain. L:/R: prefixes are accepted and
// ignored.
type scopeSelector struct {
	alts [][]string
}

func parseSelector(s string) scopeSelector {
	var sel scopeSelector
	for _, alt := range strings.Split(s, ",") {
		alt = strings.TrimSpace(alt)
		alt = strings.TrimPrefix(alt, "L:")
		alt = strings.TrimPrefix(alt, "R:")
		parts := strings.Fields(alt)
		if len(parts) > 0 {
			sel.alts = append(sel.alts, parts)
		}
	}
	return sel
}

// matches reports whether any alternative's prefixes occur in order within
// the chain. A prefix matches a scope exactly or at a dot boundary.
func (sel scopeSelector) matches(scopes []string) bool {
	for _, alt := range sel.alts {
		i := 0
		for _, scope := range scopes {
			if scopePrefix(scope, alt[i]) {
				i++
				if i == len(alt) {
					break
				}
			}
		}
		if i == len(alt) {
			return true
		}
	}
	return false
}

func scopePrefix(scope, prefix string) bool {
	return scope == prefix || strings.HasPrefix(scope, prefix+".")
}
