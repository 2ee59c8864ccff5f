package session

// Class groups errors by how the caller is expected to react.
type Class int

const (
	// ClassPrecondition marks a programming mistake of the caller, such as
	// an invalid file name or an operation which requires an open file.
	ClassPrecondition Class = iota + 1
	// ClassFatal marks a failure of the storage medium itself, from which
	// no local recovery is possible.
	ClassFatal
	// ClassBusy marks a resource which is held by someone else. Retrying
	// later may succeed.
	ClassBusy
)

func (c Class) String() string {
	switch c {
	case ClassPrecondition:
		return "precondition"
	case ClassFatal:
		return "fatal"
	case ClassBusy:
		return "busy"
	}
	return "unknown"
}

// Error is returned for every failure which must abort the calling script
// operation. Soft I/O failures are not errors; they are reported through the
// boolean results of the Session methods.
type Error struct {
	ErrorCode string
	Message   string
	Class     Class
}

func (e Error) Error() string {
	return e.ErrorCode + ": " + e.Message
}

func (e1 Error) Is(target error) bool {
	e2, ok := target.(Error)
	return ok && e1.ErrorCode == e2.ErrorCode
}

// NewError constructs a new Error object with the given error code, message
// and class.
func NewError(errCode string, message string, class Class) Error {
	return Error{
		ErrorCode: errCode,
		Message:   message,
		Class:     class,
	}
}

var (
	ErrInvalidFilename        = NewError("ERR_INVALID_FILENAME", "filename invalid", ClassPrecondition)
	ErrNoFileOpen             = NewError("ERR_NO_FILE_OPEN", "open a file first", ClassPrecondition)
	ErrFormatFailed           = NewError("ERR_FORMAT_FAILED", "Failed to format file system", ClassFatal)
	ErrFilesystemFailed       = NewError("ERR_FILESYSTEM_FAILED", "file system failed", ClassFatal)
	ErrFilesystemInconsistent = NewError("ERR_FILESYSTEM_INCONSISTENT", "file system error", ClassFatal)
)
