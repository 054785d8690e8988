// Package herr is Hatrac's closed error taxonomy (§4.8, §7, §9 "Dynamic
// control flow in the source"). The original service used exception
// propagation to pick an HTTP status; here every failure path returns
// an explicit (Kind, error) pair that the response boundary renders
// without any further branching on error content.
//
// The shape mirrors the teacher's writeErr(w, r, err, errCode) convention
// (ais/target.go, ais/proxy.go): low-level code returns a plain error,
// the HTTP boundary decides the status. herr.Error is the sum type that
// makes that boundary decision mechanical rather than ad hoc.
package herr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/zeebo/errs"
)

// Kind is the closed sum of outcomes named in spec.md §4.8.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindGone
	KindConflict
	KindBadRequest
	KindPreconditionFailed
	KindPayloadTooLarge
	KindRangeNotSatisfiable
	KindNotImplemented
)

var statusByKind = map[Kind]int{
	KindInternal:            http.StatusInternalServerError,
	KindUnauthorized:        http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindNotFound:            http.StatusNotFound,
	KindGone:                http.StatusGone, // deleted names are 410, distinguishable from undefined 404 (§4.8, §9a)
	KindConflict:            http.StatusConflict,
	KindBadRequest:          http.StatusBadRequest,
	KindPreconditionFailed:  http.StatusPreconditionFailed,
	KindPayloadTooLarge:     http.StatusRequestEntityTooLarge,
	KindRangeNotSatisfiable: http.StatusRequestedRangeNotSatisfiable,
	KindNotImplemented:      http.StatusNotImplemented,
}

var titleByKind = map[Kind]string{
	KindInternal:            "Internal Server Error",
	KindUnauthorized:        "Unauthorized",
	KindForbidden:           "Forbidden",
	KindNotFound:            "Not Found",
	KindGone:                "Gone",
	KindConflict:            "Conflict",
	KindBadRequest:          "Bad Request",
	KindPreconditionFailed:  "Precondition Failed",
	KindPayloadTooLarge:     "Payload Too Large",
	KindRangeNotSatisfiable: "Range Not Satisfiable",
	KindNotImplemented:      "Not Implemented",
}

// errClass roots every herr.Error in a zeebo/errs class so callers can
// test provenance with errs.Is/errors.As without string matching, the
// same role zeebo/errs plays throughout storj-storj's satellite packages.
var errClass = errs.Class("hatrac")

// Error is the value every handler-reachable function returns instead of
// raising. description is the longer, template-interpolated body (§4.8);
// Title defaults from Kind but may be overridden for a more specific
// message (e.g. "immutable field").
type Error struct {
	Kind        Kind
	Title       string
	Description string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Description, e.cause)
	}
	return e.Description
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (e *Error) HTTPTitle() string {
	if e.Title != "" {
		return e.Title
	}
	return titleByKind[e.Kind]
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Description: errClass.New(format, args...).Error()}
}

func Internal(cause error, context string) *Error {
	return &Error{Kind: KindInternal, Description: context, cause: errors.WithStack(cause)}
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newf(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Gone(format string, args ...interface{}) *Error {
	return newf(KindGone, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

func BadRequest(format string, args ...interface{}) *Error {
	return newf(KindBadRequest, format, args...)
}

func PreconditionFailed(format string, args ...interface{}) *Error {
	return newf(KindPreconditionFailed, format, args...)
}

func PayloadTooLarge(format string, args ...interface{}) *Error {
	return newf(KindPayloadTooLarge, format, args...)
}

func RangeNotSatisfiable(format string, args ...interface{}) *Error {
	return newf(KindRangeNotSatisfiable, format, args...)
}

func NotImplemented(format string, args ...interface{}) *Error {
	return newf(KindNotImplemented, format, args...)
}

// As recovers a *Error from any error, wrapping unknown errors as
// KindInternal the way the response boundary must always resolve to a
// concrete status (§7: "Backend I/O failure mid-stream propagates as
// 500 with a redacted message").
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	return Internal(err, "internal error")
}
