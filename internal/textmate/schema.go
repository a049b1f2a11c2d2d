package textmate

import (
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/prism/internal/log"
)

// rawGrammar mirrors a TextMate grammar document on disk. Field names are
// a compatibility boundary and must match the schema bit-for-bit. Grammars
// ship as JSON or YAML; both decode through yaml.v3 (YAML 1.2 is a JSON
// superset). Unknown keys are ignored, not rejected - grammar dialects
// vary and extra keys are common.
type rawGrammar struct {
	ScopeName  string             `yaml:"scopeName"`
	Patterns   []rawRule          `yaml:"patterns"`
	Repository map[string]rawRule `yaml:"repository"`
	Injections map[string]rawRule `yaml:"injections"`
}

// rawRule is one undecoded grammar rule. Exactly one of Include, Match,
// Begin (with End or While), or bare Patterns determines its kind.
type rawRule struct {
	Name          string                `yaml:"name"`
	Match         string                `yaml:"match"`
	Begin         string                `yaml:"begin"`
	End           string                `yaml:"end"`
	While         string                `yaml:"while"`
	Patterns      []rawRule             `yaml:"patterns"`
	Captures      map[string]rawCapture `yaml:"captures"`
	BeginCaptures map[string]rawCapture `yaml:"beginCaptures"`
	EndCaptures   map[string]rawCapture `yaml:"endCaptures"`
	Include       string                `yaml:"include"`

	// ApplyEndPatternLast is decoded loosely: grammars write it as a bool
	// or as 0/1. Absent means the engine default (end yields on an
	// exact-offset tie); an explicit falsy value makes the end pattern win
	// the tie instead.
	ApplyEndPatternLast *looseBool `yaml:"applyEndPatternLast"`

	// EndScopeExclusive is a dialect extension: when true the end-match
	// span is tagged without the rule's own scope.
	EndScopeExclusive bool `yaml:"endScopeExclusive"`
}

type rawCapture struct {
	Name string `yaml:"name"`
}

// looseBool accepts true/false, 0/1, and their string spellings.
type looseBool bool

func (b *looseBool) UnmarshalYAML(value *yaml.Node) error {
	switch value.Value {
	case "true", "True", "1":
		*b = true
	case "false", "False", "0", "":
		*b = false
	default:
		// Tolerate anything else as truthy presence.
		*b = true
	}
	return nil
}

// parseGrammar decodes a grammar document permissively.
func parseGrammar(data []byte) (*rawGrammar, error) {
	var raw rawGrammar
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &GrammarError{Reason: "undecodable document", Err: err}
	}
	if raw.ScopeName == "" {
		return nil, &GrammarError{Reason: "missing scopeName"}
	}
	return &raw, nil
}

// captureScopes converts string-indexed captures ("1", "2", ...) into a
// group-number map. Non-numeric keys are skipped; only the capture's scope
// name is honored.
func captureScopes(raw map[string]rawCapture) Captures {
	if len(raw) == 0 {
		return nil
	}
	caps := make(Captures, len(raw))
	for key, c := range raw {
		num, err := strconv.Atoi(key)
		if err != nil || num < 0 {
			log.Warn(log.CatGrammar, "skipping non-numeric capture key", "key", key)
			continue
		}
		if c.Name != "" {
			caps[num] = c.Name
		}
	}
	if len(caps) == 0 {
		return nil
	}
	return caps
}
