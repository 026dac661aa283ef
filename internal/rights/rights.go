// Package rights defines the file access levels and their ordering.
package rights

// Level is a file access level. Levels form a total order:
// viewer < editor < owner.
type Level string

const (
	Viewer Level = "viewer"
	Editor Level = "editor"
	Owner  Level = "owner"
)

var ranks = map[Level]int{
	Viewer: 1,
	Editor: 2,
	Owner:  3,
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := ranks[l]
	return ok
}

// AtLeast reports whether l grants at least the capabilities of min.
// Unknown levels never satisfy any requirement.
func (l Level) AtLeast(min Level) bool {
	lr, ok := ranks[l]
	if !ok {
		return false
	}
	mr, ok := ranks[min]
	if !ok {
		return false
	}
	return lr >= mr
}

// Parse validates a raw level string.
func Parse(s string) (Level, bool) {
	l := Level(s)
	return l, l.Valid()
}
