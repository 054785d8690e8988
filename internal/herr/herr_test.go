package herr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeByKind(t *testing.T) {
	cases := []struct {
		build func() *Error
		code  int
	}{
		{func() *Error { return NotFound("no such name %q", "/a/b") }, http.StatusNotFound},
		{func() *Error { return Gone("name was deleted") }, http.StatusGone},
		{func() *Error { return Forbidden("no access") }, http.StatusForbidden},
		{func() *Error { return Unauthorized("no credentials") }, http.StatusUnauthorized},
		{func() *Error { return Conflict("name already bound") }, http.StatusConflict},
		{func() *Error { return BadRequest("bad input") }, http.StatusBadRequest},
		{func() *Error { return PreconditionFailed("etag mismatch") }, http.StatusPreconditionFailed},
		{func() *Error { return PayloadTooLarge("chunk too big") }, http.StatusRequestEntityTooLarge},
		{func() *Error { return RangeNotSatisfiable("bad range") }, http.StatusRequestedRangeNotSatisfiable},
		{func() *Error { return NotImplemented("not supported") }, http.StatusNotImplemented},
		{func() *Error { return Internal(errors.New("boom"), "storage failure") }, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := tc.build()
		assert.Equal(t, tc.code, e.StatusCode())
		assert.NotEmpty(t, e.HTTPTitle())
	}
}

func TestHTTPTitleOverride(t *testing.T) {
	e := NotFound("missing")
	e.Title = "No Such Name"
	assert.Equal(t, "No Such Name", e.HTTPTitle())
}

func TestInternalWrapsCauseAndUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	e := Internal(cause, "write version content")
	assert.Contains(t, e.Error(), "write version content")
	assert.Contains(t, e.Error(), "disk full")
	assert.ErrorIs(t, e, cause)
}

func TestAsRecoversHerrAndWrapsUnknown(t *testing.T) {
	original := NotFound("no such name")
	assert.Same(t, original, As(original))

	wrapped := As(errors.New("plain error"))
	assert.Equal(t, KindInternal, wrapped.Kind)

	assert.Nil(t, As(nil))
}
