package govee

import "fmt"

// Pattern is a named solid color a tenant can pick for manual tests.
type Pattern struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

var patterns = []Pattern{
	{0, "white", Color{255, 255, 255}},
	{1, "red", Color{255, 0, 0}},
	{2, "green", Color{0, 255, 0}},
	{3, "blue", Color{0, 0, 255}},
	{4, "yellow", Color{255, 255, 0}},
	{5, "magenta", Color{255, 0, 255}},
	{6, "cyan", Color{0, 255, 255}},
	{7, "orange", Color{255, 165, 0}},
	{8, "purple", Color{128, 0, 128}},
	{9, "pink", Color{255, 192, 203}},
	{10, "deep pink", Color{255, 20, 147}},
}

// Patterns returns a copy of the pattern table, ordered by id.
func Patterns() []Pattern {
	out := make([]Pattern, len(patterns))
	copy(out, patterns)
	return out
}

// LookupPattern returns the pattern with the given id.
func LookupPattern(id int) (Pattern, error) {
	if id < 0 || id >= len(patterns) {
		return Pattern{}, fmt.Errorf("%w: %d", ErrUnknownPattern, id)
	}
	return patterns[id], nil
}
