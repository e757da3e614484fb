// Package dfserr defines the error taxonomy shared by every layer of the
// client: infrastructure failures, not-found results, caller-stream errors,
// and invalid arguments. Callers distinguish kinds with errors.As, never by
// inspecting messages.
package dfserr

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// InfrastructureError wraps any coordinator/storage-node reachability,
// framing, or protocol-status failure. It is unchecked: callers may retry
// across replicas or endpoints.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("infrastructure error: %v", e.Err)
	}
	return fmt.Sprintf("infrastructure error during %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// Infrastructure wraps err (with pkg/errors.Wrap so the stack trace and
// cause survive) into an *InfrastructureError tagged with op.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfrastructureError{Op: op, Err: pkgerrors.Wrap(err, op)}
}

// Infrastructuref is Infrastructure with a formatted message instead of an
// existing error.
func Infrastructuref(op, format string, args ...interface{}) error {
	return &InfrastructureError{Op: op, Err: fmt.Errorf(format, args...)}
}

// NotFoundError reports that the target path does not exist. Returned from
// Stat as a nil result, not an error; returned as an error from
// ReadAttributes and from listing a non-existent directory.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

func NotFound(path string) error {
	return &NotFoundError{Path: path}
}

// CallerStreamError wraps an error that originated in a caller-supplied
// source or sink, not in the DFS. Checked by callers; propagated verbatim,
// never reclassified as infrastructure.
type CallerStreamError struct {
	Err error
}

func (e *CallerStreamError) Error() string {
	return fmt.Sprintf("caller stream error: %v", e.Err)
}

func (e *CallerStreamError) Unwrap() error { return e.Err }

// CallerStream tags err as originating from a caller-supplied io.Reader or
// io.Writer. If err is already a *CallerStreamError it is returned as-is.
func CallerStream(err error) error {
	if err == nil {
		return nil
	}
	if cs, ok := err.(*CallerStreamError); ok {
		return cs
	}
	return &CallerStreamError{Err: err}
}

// IsCallerStream reports whether err (or something it wraps) is a
// *CallerStreamError.
func IsCallerStream(err error) bool {
	_, ok := err.(*CallerStreamError)
	if ok {
		return true
	}
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
		if err == nil {
			return false
		}
		if _, ok := err.(*CallerStreamError); ok {
			return true
		}
	}
}

// InvalidArgumentError reports a malformed path, required-but-nil input, or
// a negative size. Thrown synchronously at the API boundary, before any
// network work.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func InvalidArgument(format string, args ...interface{}) error {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}
