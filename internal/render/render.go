// Package render turns tokenized lines into styled terminal output.
package render

import (
	"strings"

	"github.com/muesli/termenv"

	"github.com/zjrosen/prism/internal/textmate"
	"github.com/zjrosen/prism/internal/theme"
)

// Renderer styles lines using a theme. Plain mode, or a terminal with no
// color support, passes text through untouched.
type Renderer struct {
	theme *theme.Theme
	plain bool
}

// New builds a renderer. A nil theme forces plain output.
func New(th *theme.Theme, plain bool) *Renderer {
	if th == nil {
		plain = true
	}
	if termenv.ColorProfile() == termenv.Ascii {
		plain = true
	}
	return &Renderer{theme: th, plain: plain}
}

// NewPlain builds a pass-through renderer.
func NewPlain() *Renderer {
	return &Renderer{plain: true}
}

// Line renders one line from its regions. Adjacent regions that resolve
// to the same style are merged into a single styled run, and unstyled
// stretches are written verbatim.
func (r *Renderer) Line(line string, regions []textmate.Region) string {
	if r.plain {
		return line
	}

	runes := []rune(line)
	var b strings.Builder
	b.Grow(len(line))

	var run strings.Builder
	var runStyle theme.Style
	flush := func() {
		if run.Len() == 0 {
			return
		}
		if runStyle.IsZero() {
			b.WriteString(run.String())
		} else {
			b.WriteString(runStyle.Lipgloss().Render(run.String()))
		}
		run.Reset()
	}

	for i, reg := range regions {
		end := min(reg.End, len(runes))
		start := min(reg.Start, end)
		text := string(runes[start:end])

		style := r.theme.Resolve(reg.Scopes)
		if i == 0 || style != runStyle {
			flush()
			runStyle = style
		}
		run.WriteString(text)
	}
	flush()
	return b.String()
}

// Document renders an entire tokenized document, one line per element.
func (r *Renderer) Document(doc *textmate.Document) []string {
	out := make([]string, doc.LineCount())
	for i := range out {
		out[i] = r.Line(doc.Line(i), doc.Regions(i))
	}
	return out
}

// Text tokenizes and renders text under g in one pass.
func (r *Renderer) Text(g *textmate.Grammar, text string) string {
	return strings.Join(r.Document(textmate.NewDocument(g, text)), "\n")
}
