package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Client wraps exactly one of these, so
// callers can branch with errors.Is; the underlying cause stays reachable too.
var (
	ErrNotConnected       = errors.New("not connected to server")
	ErrConnection         = errors.New("connection failed")
	ErrTransientTransport = errors.New("session lost")
	ErrTimeout            = errors.New("operation timed out")
	ErrUserCancelled      = errors.New("cancelled by user")
	ErrNotAFile           = errors.New("not a file")
	ErrNotADirectory      = errors.New("not a directory")
	ErrInvalidPath        = errors.New("invalid remote path")
	ErrIO                 = errors.New("local i/o error")
	ErrTransfer           = errors.New("transfer failed")
)

// OpError records the operation and path that produced a failure.
type OpError struct {
	Op   string // "upload file", "list", ...
	Path string // file or folder the operation was about, may be empty
	Kind error
	Err  error // underlying cause, may be nil
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += fmt.Sprintf(" %q", e.Path)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, path string, kind, cause error) error {
	return &OpError{Op: op, Path: path, Kind: kind, Err: cause}
}

// transferError tags a transport failure. Errors that already carry a kind are
// returned as is.
func transferError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	if IsTransient(err) {
		return opError(op, path, ErrTransientTransport, err)
	}
	return opError(op, path, ErrTransfer, err)
}
