// Package apperr defines the error kinds surfaced by services and mapped to
// HTTP status codes by the handlers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidInput
	KindUnauthenticated
	KindUnauthorized
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnavailable:
		return "unavailable"
	}
	return "internal"
}

// Error 携带种类和面向调用方的消息；Err 只用于日志
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

func InvalidInput(format string, args ...any) *Error {
	return newf(KindInvalidInput, nil, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return newf(KindUnauthenticated, nil, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, nil, format, args...)
}

func Unavailable(err error, format string, args ...any) *Error {
	return newf(KindUnavailable, err, format, args...)
}

func Internal(err error, format string, args ...any) *Error {
	return newf(KindInternal, err, format, args...)
}

// KindOf 返回 err 链上第一个 *Error 的种类，其他错误视为 Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断 err 是否为指定种类
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
