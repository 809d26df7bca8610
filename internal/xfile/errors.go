package xfile

import (
	"errors"
	"fmt"
)

// Kind categorizes errors so the CLI can pick an exit status
type Kind int

const (
	KindUnknown      Kind = iota
	KindRead                // Input missing, unreadable or faulted mid-read
	KindWrite               // Output could not be created, written or renamed
	KindSizeOverflow        // Payload does not fit the 32-bit text size field
	KindFormat              // Input is not a well-formed .X file
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindSizeOverflow:
		return "size_overflow"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

var (
	ErrPayloadTooLarge = errors.New("payload too large for .X text size field")
	ErrShortHeader     = errors.New("file shorter than .X header")
	ErrBadMagic        = errors.New("bad .X magic")
	ErrNoSpace         = errors.New("not enough free space")
	ErrNotRegular      = errors.New("not a regular file")
)

// Error wraps a failure with the operation and path it happened on
type Error struct {
	Kind Kind
	Op   string // "wrap", "inspect", "unwrap"
	Path string
	Err  error
}

// Error implements error interface
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Kind
	}
	return KindUnknown
}
