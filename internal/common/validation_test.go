package common

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	name := "  "
	v := NewValidator().
		Field("query", "", Required).
		Field("name", &name, Required).
		Field("title", strings.Repeat("é", 5), MaxLength(4)).
		Field("code", "ab", MinLength(3)).
		Field("files", 0, CountBetween(1, 10)).
		Field("more", 11, CountBetween(1, 10)).
		Field("size", int64(11<<20), MaxInt64(10<<20)).
		Field("user_id", "nope", UUID)

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 8)

	err := v.Error()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "at least one is required")
	assert.Contains(t, err.Error(), "maximum 10 allowed")
}

func TestValidator_Passes(t *testing.T) {
	v := NewValidator().
		Field("query", "what changed", Required, MaxLength(2000)).
		Field("files", 10, CountBetween(1, 10)).
		Field("user_id", "5f1c1f3e-8d55-4a55-9f3c-6a0c1e0f3f10", UUID).
		Field("size", "not an int64", MaxInt64(1))

	assert.False(t, v.HasErrors())
	assert.NoError(t, v.Error())
	assert.Empty(t, v.ErrorMessage())
}

func TestValidationError_Is(t *testing.T) {
	err := error(ValidationError{Field: "x", Message: "bad"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrNotFound)
}
