package common

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NotFoundf("batch %d", 1), http.StatusNotFound},
		{InvalidInputf("bad"), http.StatusBadRequest},
		{NewValidator().Field("name", "", Required).Error(), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", ErrConflict), http.StatusConflict},
		{NewAppError("X", "y", ErrUpstream), http.StatusBadGateway},
		{NewAppError("X", "y", ErrUnauthorized), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "%v", tt.err)
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "batch 7 not found", PublicMessage(NotFoundf("batch %d not found", 7)))
	assert.Equal(t, "internal error", PublicMessage(errors.New("pq: relation missing")))
	assert.Equal(t, "conflict", PublicMessage(ErrConflict))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "ctx"))
	err := WrapError(ErrDatabase, "save batch")
	assert.ErrorIs(t, err, ErrDatabase)
	assert.Equal(t, "save batch: database error", err.Error())
}

func TestNewLoggerWithWriters(t *testing.T) {
	var text, js bytes.Buffer
	logger := NewLoggerWithWriters(&text, &js, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("batch.created", "files", 2)

	assert.NotContains(t, text.String(), "hidden")
	assert.Contains(t, text.String(), "batch.created")
	assert.Contains(t, js.String(), `"files":2`)
}
