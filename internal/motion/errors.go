package motion

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies a failure so the batch report can attribute it.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindIOFailure      Kind = "io_failure"
	KindPrecondition   Kind = "precondition_violation"
	KindExternalTool   Kind = "external_tool_failure"
	KindNotMotionPhoto Kind = "not_a_motion_photo"
	KindUnmatched      Kind = "unmatched_input"
	KindUnknown        Kind = "unknown"
)

// Error carries the kind of failure and the path it is attributable to.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// ioError maps an os-level error to NotFound or IOFailure.
func ioError(op, path string, err error) *Error {
	kind := KindIOFailure
	if errors.Is(err, fs.ErrNotExist) {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
