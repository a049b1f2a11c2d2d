package textmate

import (
	"strings"

	"github.com/zjrosen/prism/internal/log"
	"github.com/zjrosen/prism/internal/state"
)

// LineUpdate is one re-tokenized line after an edit.
type LineUpdate struct {
	Index   int
	Regions []Region
}

// Document caches per-line regions and end states so edits re-tokenize
// only the affected suffix. After a change at line i, scanning proceeds
// forward until a line's new end state equals the cached one; everything
// past that point is untouched, which is what keeps per-keystroke
// re-highlighting cheap on large buffers.
type Document struct {
	grammar *Grammar
	lines   []string
	regions [][]Region
	states  []state.State
}

// NewDocument tokenizes text in full and caches the results.
func NewDocument(g *Grammar, text string) *Document {
	d := &Document{
		grammar: g,
		lines:   strings.Split(text, "\n"),
	}
	d.regions = make([][]Region, len(d.lines))
	d.states = make([]state.State, len(d.lines))
	d.retokenizeFrom(0)
	return d
}

// LineCount returns the number of lines in the document.
func (d *Document) LineCount() int { return len(d.lines) }

// Line returns the text of line i.
func (d *Document) Line(i int) string { return d.lines[i] }

// Regions returns the cached regions for line i.
func (d *Document) Regions(i int) []Region { return d.regions[i] }

// EndState returns the tokenizer state after line i. Feeding it back with
// the remaining lines reproduces the same regions as a full scan.
func (d *Document) EndState(i int) state.State { return d.states[i] }

// SetLine replaces the text of line i and returns the lines whose output
// changed, in order.
func (d *Document) SetLine(i int, text string) []LineUpdate {
	d.lines[i] = text
	return d.retokenizeFrom(i)
}

// InsertLine inserts text as a new line at index i.
func (d *Document) InsertLine(i int, text string) []LineUpdate {
	d.lines = append(d.lines[:i], append([]string{text}, d.lines[i:]...)...)
	d.regions = append(d.regions[:i], append([][]Region{nil}, d.regions[i:]...)...)
	d.states = append(d.states[:i], append([]state.State{{}}, d.states[i:]...)...)
	return d.retokenizeFrom(i)
}

// RemoveLine deletes line i. The lines that follow keep their cached
// output unless their entry state changed.
func (d *Document) RemoveLine(i int) []LineUpdate {
	d.lines = append(d.lines[:i], d.lines[i+1:]...)
	d.regions = append(d.regions[:i], d.regions[i+1:]...)
	d.states = append(d.states[:i], d.states[i+1:]...)
	if i >= len(d.lines) {
		return nil
	}
	return d.retokenizeFrom(i)
}

// retokenizeFrom rescans lines starting at i, stopping after the first
// line whose end state matches the cached one.
func (d *Document) retokenizeFrom(i int) []LineUpdate {
	st := d.grammar.RootState()
	if i > 0 {
		st = d.states[i-1]
	}

	var updates []LineUpdate
	for ; i < len(d.lines); i++ {
		newState, regions := d.grammar.TokenizeLine(st, d.lines[i])
		cached := d.states[i]

		d.regions[i] = regions
		d.states[i] = newState
		updates = append(updates, LineUpdate{Index: i, Regions: regions})

		if newState.Equal(cached) {
			break
		}
		st = newState
	}

	log.Debug(log.CatScan, "incremental rescan",
		"scope", d.grammar.ScopeName, "lines", len(updates))
	return updates
}
