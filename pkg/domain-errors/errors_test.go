package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeDuplicateVote, "verifier already voted")
		assert.True(t, HasCode(err, CodeDuplicateVote))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("matches wrapped code", func(t *testing.T) {
		inner := New(CodeOverflow, "raised total overflow")
		outer := Wrap(inner, CodeInternal, "record donation")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeOverflow))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("execute: %w", New(CodeCaseNotVerified, "case not verified"))
		assert.True(t, Is(err, CodeCaseNotVerified))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "noop"))

	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to load case")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load case", MessageOf(err))
	assert.Equal(t, "failed to load case: connection reset", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:          http.StatusBadRequest,
		CodeUnauthorized:        http.StatusUnauthorized,
		CodeNotWhitelisted:      http.StatusForbidden,
		CodeEscrowNotFound:      http.StatusNotFound,
		CodeDuplicateVote:       http.StatusConflict,
		CodeWindowExpired:       http.StatusGone,
		CodeInsufficientBalance: http.StatusUnprocessableEntity,
		CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
}
