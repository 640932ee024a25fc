// Package errs defines the node's closed set of error kinds. Every error
// that crosses a component boundary (Processor, Pool, Synchronizer, Forger,
// Transport) is one of these, so callers can branch on kind with errors.As
// instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error categories the node's components
// distinguish between.
type Kind string

const (
	KindSchema       Kind = "schema"       // malformed payload; peer penalty, never fatal
	KindValidation   Kind = "validation"   // static block/tx invalid; drop, penalize peer
	KindVerification Kind = "verification" // state-dependent invalid; drop, penalize peer
	KindFork         Kind = "fork"         // fork-choice outcome; see ForkError.Recoverable
	KindNotFound     Kind = "not_found"    // expected absence; recovered locally
	KindStorage      Kind = "storage"      // fatal to the in-flight operation
	KindKey          Kind = "key"          // forging-key mismatch or onion exhaustion
	KindTimeout      Kind = "timeout"      // sync chunk / peer RPC; retried with backoff
)

// Error is the concrete type behind every sentinel below.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Schema(format string, args ...any) *Error     { return newf(KindSchema, format, args...) }
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func Verification(format string, args ...any) *Error {
	return newf(KindVerification, format, args...)
}
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }
func Key(format string, args ...any) *Error      { return newf(KindKey, format, args...) }
func Timeout(format string, args ...any) *Error  { return newf(KindTimeout, format, args...) }

func WrapStorage(err error, format string, args ...any) *Error {
	return wrap(KindStorage, err, format, args...)
}
func WrapSchema(err error, format string, args ...any) *Error {
	return wrap(KindSchema, err, format, args...)
}

// ForkError carries the fork-choice outcome that determined it: Recoverable
// forks trigger SyncRequired; Irrecoverable forks (below finalized height)
// get a permanent peer penalty and are otherwise ignored.
type ForkError struct {
	Recoverable  bool
	Irrecoverable bool
	Msg          string
}

func (e *ForkError) Error() string { return fmt.Sprintf("fork: %s", e.Msg) }

func RecoverableFork(format string, args ...any) *ForkError {
	return &ForkError{Recoverable: true, Msg: fmt.Sprintf(format, args...)}
}

func IrrecoverableFork(format string, args ...any) *ForkError {
	return &ForkError{Irrecoverable: true, Msg: fmt.Sprintf(format, args...)}
}

// Is implements errors.Is support for the Kind sentinels below: errors.Is(err, errs.NotFound("")) kind-matches
// regardless of message, which is why IsKind is the preferred check (Is is provided for completeness).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err (or something it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
