package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeOf(NotFound("workbook", "7")))
	assert.Equal(t, ErrCodeInvalidInput, CodeOf(InvalidInput("nav", "bad")))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", New(ErrCodeConflict, "cannot submit"))
	assert.Equal(t, ErrCodeConflict, CodeOf(wrapped))
	assert.True(t, Is(wrapped, ErrCodeConflict))
	assert.False(t, Is(nil, ErrCodeConflict))
}

func TestWrapUnwraps(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeInternal, "failed to load workbook")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load workbook: connection reset", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		NotFound("submission", "x"):      http.StatusNotFound,
		InvalidInput("note", "too long"): http.StatusUnprocessableEntity,
		New(ErrCodeConflict, "locked"):   http.StatusConflict,
		Forbidden("admins only"):         http.StatusForbidden,
		Unauthorized("missing user"):     http.StatusUnauthorized,
		stderrors.New("boom"):            http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
