package subject

import "strings"

// Tag is the analysis domain selected when an image is captured.
type Tag string

const (
	Math       Tag = "Math"
	Science    Tag = "Science"
	History    Tag = "History"
	Literature Tag = "Literature"
	Language   Tag = "Language"
)

// Default is the mode the camera starts in.
const Default = Math

var all = []Tag{Math, Science, History, Literature, Language}

// All returns the supported tags in display order.
func All() []Tag {
	out := make([]Tag, len(all))
	copy(out, all)
	return out
}

// Parse matches s against the supported tags, ignoring case and
// surrounding whitespace.
func Parse(s string) (Tag, bool) {
	s = strings.TrimSpace(s)
	for _, t := range all {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t is exactly one of the supported tags.
func (t Tag) Valid() bool {
	for _, v := range all {
		if t == v {
			return true
		}
	}
	return false
}

func (t Tag) String() string { return string(t) }
