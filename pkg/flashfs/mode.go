package flashfs

import "strings"

// ParseMode translates a C-style mode string into driver flags. A trailing or
// embedded "b" is ignored. Unrecognised modes open the file for reading.
func ParseMode(mode string) Flag {
	switch strings.ReplaceAll(mode, "b", "") {
	case "w":
		return WriteOnly | Create | Truncate
	case "a":
		return WriteOnly | Create | Append
	case "r+":
		return ReadWrite
	case "w+":
		return ReadWrite | Create | Truncate
	case "a+":
		return ReadWrite | Create | Append
	default:
		return ReadOnly
	}
}

// String returns the canonical mode string for f, or "" if f does not
// correspond to one of the modes accepted by ParseMode.
func (f Flag) String() string {
	switch f {
	case ReadOnly:
		return "r"
	case WriteOnly | Create | Truncate:
		return "w"
	case WriteOnly | Create | Append:
		return "a"
	case ReadWrite:
		return "r+"
	case ReadWrite | Create | Truncate:
		return "w+"
	case ReadWrite | Create | Append:
		return "a+"
	}
	return ""
}
