package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(New(Validation, "bad duration")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(New(NotFound, "no warranty")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(New(Conflict, "already scheduled")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("opaque")))
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	inner := errors.New("row missing")
	err := fmt.Errorf("loading warranty: %w", Wrap(NotFound, "warranty not found", inner))

	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
	assert.Equal(t, "warranty not found", Message(err))
	assert.ErrorIs(t, err, inner)
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, "server error", Message(errors.New("pq: connection refused")))
}
