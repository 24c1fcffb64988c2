package faceswap

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures.
type Kind uint8

const (
	// KindInvalidImage: a caller-supplied image is absent, unreadable or
	// of an unsupported shape or type.
	KindInvalidImage Kind = iota + 1
	// KindRemoteInit: the runtime is too old or the remote connection
	// could not be constructed.
	KindRemoteInit
	// KindRemoteCall: the remote operation failed or returned a result of
	// unknown shape.
	KindRemoteCall
)

func (k Kind) String() string {
	switch k {
	case KindInvalidImage:
		return "invalid image"
	case KindRemoteInit:
		return "remote init"
	case KindRemoteCall:
		return "remote call"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is the root of every error returned by the adapter. The transport
// or codec failure that caused it, if any, is available through Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrInvalidImage = &Error{Kind: KindInvalidImage}
	ErrRemoteInit   = &Error{Kind: KindRemoteInit}
	ErrRemoteCall   = &Error{Kind: KindRemoteCall}
)

func (e *Error) Error() string {
	msg := "faceswap: " + e.Kind.String()
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// IsKind reports whether err carries an adapter error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func invalidImage(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidImage, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, op string, err error, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}
