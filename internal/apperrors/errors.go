// Package apperrors defines the error taxonomy shared across the bridge:
// a small set of wrapped sentinel kinds so handlers can branch with
// errors.Is/errors.As instead of matching message strings.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind identifies which taxonomy bucket an error belongs to.
type Kind int

const (
	KindConfig Kind = iota
	KindTunnel
	KindValidation
	KindQuery
	KindPool
	KindAuth
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindTunnel:
		return "TunnelError"
	case KindValidation:
		return "ValidationError"
	case KindQuery:
		return "QueryError"
	case KindPool:
		return "PoolError"
	case KindAuth:
		return "AuthError"
	case KindProtocol:
		return "ProtocolError"
	default:
		return "Error"
	}
}

// Error wraps an underlying cause with a taxonomy Kind and a user-facing
// message. The underlying cause is never exposed verbatim to callers
// outside this process; obfuscation happens at the boundary that logs or
// returns Error.Message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows kind checks such as
// errors.Is(err, &apperrors.Error{Kind: apperrors.KindConfig}): a target
// *Error with an empty Message matches any error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func newKind(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func wrapKind(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Config(format string, args ...any) *Error     { return newKind(KindConfig, format, args...) }
func Tunnel(format string, args ...any) *Error      { return newKind(KindTunnel, format, args...) }
func Validation(format string, args ...any) *Error  { return newKind(KindValidation, format, args...) }
func Query(format string, args ...any) *Error       { return newKind(KindQuery, format, args...) }
func Pool(format string, args ...any) *Error        { return newKind(KindPool, format, args...) }
func Auth(format string, args ...any) *Error        { return newKind(KindAuth, format, args...) }
func Protocol(format string, args ...any) *Error    { return newKind(KindProtocol, format, args...) }

func WrapTunnel(cause error, format string, args ...any) *Error {
	return wrapKind(KindTunnel, cause, format, args...)
}

func WrapQuery(cause error, format string, args ...any) *Error {
	return wrapKind(KindQuery, cause, format, args...)
}

func WrapConfig(cause error, format string, args ...any) *Error {
	return wrapKind(KindConfig, cause, format, args...)
}

// KindOf reports the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
