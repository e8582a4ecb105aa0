package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_RecognizesEachConstructor(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Validation("bad input"), KindValidation},
		{Unauthenticated("no token"), KindUnauthenticated},
		{Forbidden("not yours"), KindForbidden},
		{NotFound("gone"), KindNotFound},
		{Conflict("exists"), KindConflict},
		{Transient("retry me", nil), KindTransient},
		{Fatal("broken", nil), KindFatal},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, KindOf(c.err))
	}
}

func TestKindOf_DefaultsToFatalForPlainErrors(t *testing.T) {
	assert.Equal(t, KindFatal, KindOf(errors.New("plain")))
}

func TestStatusCode_MapsEveryKind(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusCode(KindValidation))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(KindUnauthenticated))
	assert.Equal(t, http.StatusForbidden, StatusCode(KindForbidden))
	assert.Equal(t, http.StatusNotFound, StatusCode(KindNotFound))
	assert.Equal(t, http.StatusConflict, StatusCode(KindConflict))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(KindTransient))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(KindFatal))
}

func TestError_UnwrapExposesWrappedErr(t *testing.T) {
	wrapped := errors.New("dial tcp: connection refused")
	err := Transient("broker unreachable", wrapped)

	assert.ErrorIs(t, err, wrapped)
	assert.Contains(t, err.Error(), "broker unreachable")
}
