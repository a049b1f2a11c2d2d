// Package theme loads VS Code-style token color themes and resolves
// scope chains to terminal styles.
package theme

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/prism/internal/cachemanager"
	"github.com/zjrosen/prism/internal/log"
)

// Style is the resolved appearance for one scope chain.
type Style struct {
	Foreground string
	Background string
	Bold       bool
	Italic     bool
	Underline  bool
}

// IsZero reports whether the style carries no attributes at all.
func (s Style) IsZero() bool {
	return s == Style{}
}

// Lipgloss converts the style for terminal rendering.
func (s Style) Lipgloss() lipgloss.Style {
	st := lipgloss.NewStyle()
	if s.Foreground != "" {
		st = st.Foreground(lipgloss.Color(s.Foreground))
	}
	if s.Background != "" {
		st = st.Background(lipgloss.Color(s.Background))
	}
	return st.Bold(s.Bold).Italic(s.Italic).Underline(s.Underline)
}

// Theme maps scopes to styles. Resolution walks the chain innermost
// scope first, trimming dot segments right to left, so the most specific
// rule that exists wins; results are memoized per chain.
type Theme struct {
	Name string

	rules    map[string]Style
	defaults Style
	resolved *cachemanager.InMemoryCacheManager[string, Style]
}

type rawTheme struct {
	Name        string            `yaml:"name"`
	Colors      map[string]string `yaml:"colors"`
	TokenColors []rawTokenColor   `yaml:"tokenColors"`
}

type rawTokenColor struct {
	Scope    any `yaml:"scope"`
	Settings struct {
		Foreground string `yaml:"foreground"`
		Background string `yaml:"background"`
		FontStyle  string `yaml:"fontStyle"`
	} `yaml:"settings"`
}

// Load reads a theme document from disk.
func Load(path string) (*Theme, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the configured theme file
	if err != nil {
		return nil, fmt.Errorf("reading theme: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("theme %s: %w", path, err)
	}
	log.Info(log.CatTheme, "theme loaded", "path", path, "name", t.Name, "rules", len(t.rules))
	return t, nil
}

// Parse builds a theme from a raw document (JSON or YAML).
func Parse(data []byte) (*Theme, error) {
	var raw rawTheme
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing theme: %w", err)
	}

	t := &Theme{
		Name:     raw.Name,
		rules:    make(map[string]Style),
		resolved: cachemanager.NewInMemoryCacheManager[string, Style]("theme", cachemanager.NoExpiration, 0),
	}
	t.defaults = Style{
		Foreground: raw.Colors["editor.foreground"],
		Background: raw.Colors["editor.background"],
	}

	for _, tc := range raw.TokenColors {
		style := Style{
			Foreground: tc.Settings.Foreground,
			Background: tc.Settings.Background,
		}
		for _, attr := range strings.Fields(tc.Settings.FontStyle) {
			switch attr {
			case "bold":
				style.Bold = true
			case "italic":
				style.Italic = true
			case "underline":
				style.Underline = true
			}
		}

		scopes := scopeList(tc.Scope)
		if len(scopes) == 0 {
			// An entry without a scope restates the editor defaults.
			t.defaults = style
			continue
		}
		// Later rules override earlier ones, as editors apply them.
		for _, scope := range scopes {
			t.rules[scope] = style
		}
	}
	return t, nil
}

// scopeList normalizes the scope field: a single string (possibly
// comma-separated) or a list of strings.
func scopeList(v any) []string {
	var out []string
	switch s := v.(type) {
	case string:
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}
	}
	return out
}

// Default returns the editor-wide fallback style.
func (t *Theme) Default() Style {
	return t.defaults
}

// Resolve maps a scope chain to its style.
func (t *Theme) Resolve(scopes []string) Style {
	key := strings.Join(scopes, " ")
	ctx := context.Background()
	if style, ok := t.resolved.Get(ctx, key); ok {
		return style
	}

	style, found := t.defaults, false
	// Innermost scope first; within a scope, the longest dot prefix that
	// has a rule wins.
	for i := len(scopes) - 1; i >= 0 && !found; i-- {
		parts := strings.Split(scopes[i], ".")
		for n := len(parts); n >= 1; n-- {
			if s, ok := t.rules[strings.Join(parts[:n], ".")]; ok {
				style, found = s, true
				break
			}
		}
	}

	t.resolved.Set(ctx, key, style, cachemanager.NoExpiration)
	return style
}
