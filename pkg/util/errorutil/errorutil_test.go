package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"domain error kept", NewForbidden("nope"), "FORBIDDEN", http.StatusForbidden},
		{"wrapped domain error", fmt.Errorf("login: %w", NewBadGateway("auth api unavailable", cause)), "UPSTREAM_UNAVAILABLE", http.StatusBadGateway},
		{"fiber not found", fiber.ErrNotFound, "NOT_FOUND", http.StatusNotFound},
		{"fiber teapot", fiber.NewError(http.StatusTeapot, "tea"), "REQUEST_FAILED", http.StatusTeapot},
		{"plain error", cause, "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ToDomainError(tt.err)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.status, de.HTTPStatus)
		})
	}

	assert.Nil(t, ToDomainError(nil))
}

func TestDomainError_UnwrapsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := NewBadGateway("auth api unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "auth api unavailable: timeout", err.Error())
}
