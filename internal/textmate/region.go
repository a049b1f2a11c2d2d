package textmate

// Region is one contiguous, scope-tagged span of a tokenized line.
// Offsets are rune offsets, half-open. The regions emitted for a line are
// ordered by start, non-overlapping, and exactly cover [0, line length).
type Region struct {
	Start  int
	End    int
	Scopes []string
}

// Len returns the number of runes the region covers.
func (r Region) Len() int { return r.End - r.Start }
