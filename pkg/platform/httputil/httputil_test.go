package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "curaledger/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body, "error_description")
	})

	t.Run("ledger code includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeDuplicateVote, "verifier has already voted on this case"))

		require.Equal(t, http.StatusConflict, w.Code)
		var body ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "duplicate_vote", body.Error)
		assert.Equal(t, "verifier has already voted on this case", body.ErrorDescription)
	})

	t.Run("plain error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

type voteBody struct {
	Approve *bool `json:"approve"`
}

func (b *voteBody) Validate() error {
	if b.Approve == nil {
		return dErrors.New(dErrors.CodeValidation, "approve is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	decode := func(body string) (*httptest.ResponseRecorder, *voteBody, bool) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req, ok := DecodeAndPrepare[voteBody](w, r, logger, context.Background(), "req-1")
		return w, req, ok
	}

	t.Run("valid body", func(t *testing.T) {
		_, req, ok := decode(`{"approve":true}`)
		require.True(t, ok)
		assert.True(t, *req.Approve)
	})

	t.Run("malformed json", func(t *testing.T) {
		w, _, ok := decode(`{"approve":`)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		w, _, ok := decode(`{"approve":true,"weight":3}`)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		w, _, ok := decode(`{}`)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "approve is required")
	})
}
