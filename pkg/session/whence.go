package session

import "io"

// Whence selects the origin of a Seek.
type Whence int

const (
	// WhenceCurrent seeks relative to the current position. It is the
	// default origin.
	WhenceCurrent Whence = iota
	// WhenceSet seeks relative to the start of the file.
	WhenceSet
	// WhenceEnd seeks relative to the end of the file.
	WhenceEnd
)

// ParseWhence maps the Lua origin names "set", "cur" and "end" onto a Whence.
func ParseWhence(name string) (Whence, bool) {
	switch name {
	case "set":
		return WhenceSet, true
	case "cur":
		return WhenceCurrent, true
	case "end":
		return WhenceEnd, true
	}
	return WhenceCurrent, false
}

func (w Whence) String() string {
	switch w {
	case WhenceSet:
		return "set"
	case WhenceEnd:
		return "end"
	}
	return "cur"
}

func (w Whence) ioWhence() int {
	switch w {
	case WhenceSet:
		return io.SeekStart
	case WhenceEnd:
		return io.SeekEnd
	}
	return io.SeekCurrent
}
