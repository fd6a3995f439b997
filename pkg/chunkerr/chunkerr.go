// Package chunkerr provides the typed error taxonomy used at every engine
// boundary: IO, Attribution, Config, InvalidArgument and Internal. All
// errors produced by the engine are fatal — chunkah never retries and
// never emits a partial archive, so callers only need Error() and the Kind
// field.
package chunkerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a build error.
type Kind int

const (
	// IO covers read/stat/write failures against the rootfs or the
	// staging area.
	IO Kind = iota
	// Attribution covers a malformed package database or attributor
	// failure.
	Attribution
	// Config covers a missing or malformed CHUNKAH_CONFIG_STR.
	Config
	// InvalidArgument covers a bad flag or environment value.
	InvalidArgument
	// Internal covers an invariant violation inside the engine itself.
	Internal
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case Attribution:
		return "attribution"
	case Config:
		return "config"
	case InvalidArgument:
		return "invalid argument"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the single error type the engine returns across package
// boundaries. Op names the stage/operation in progress (a path, a blob
// digest, a layer index) so the caller can render one useful line without
// needing to unwrap further.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return fmt.Sprintf("chunkah: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("chunkah: %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error of the given kind, wrapping err with op as
// context via github.com/pkg/errors so callers further up the stack can
// still add their own context with errors.Wrap.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.Wrap(err, op)}
}

// Wrapf is Wrap with a formatted op label.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return Wrap(kind, fmt.Sprintf(format, args...), err)
}

// Is reports whether err is a *Error of the given kind, so callers can
// branch on the taxonomy (e.g. to choose an exit code) without a type
// switch at every call site.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
