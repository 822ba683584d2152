package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error message", func(t *testing.T) {
		assert.Equal(t, "team not found", ErrTeamNotFound.Error())
		assert.Equal(t, "team falcons not found", NewNotFoundError("team", "falcons").Error())
	})

	t.Run("errors.Is matches same entity regardless of id", func(t *testing.T) {
		err := fmt.Errorf("lookup: %w", NewNotFoundError("team", "falcons"))
		assert.True(t, errors.Is(err, ErrTeamNotFound))
		assert.False(t, errors.Is(err, ErrSessionNotFound))
	})

	t.Run("IsNotFound helper", func(t *testing.T) {
		assert.True(t, IsNotFound(ErrTeamNotFound))
		assert.False(t, IsNotFound(ErrAmbiguousTeamLink))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("Error message with field", func(t *testing.T) {
		err := &ValidationError{Field: "comment", Message: "must not be empty"}
		assert.Equal(t, "validation error: comment - must not be empty", err.Error())
	})

	t.Run("Error message without field", func(t *testing.T) {
		err := &ValidationError{Message: "invalid adjustment"}
		assert.Equal(t, "validation error: invalid adjustment", err.Error())
	})

	t.Run("IsValidation helper", func(t *testing.T) {
		assert.True(t, IsValidation(NewValidationError("delta", "must be non-zero")))
		assert.False(t, IsValidation(ErrTeamNotFound))
	})
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStoreError("increment team points", cause)

	assert.Equal(t, "store increment team points failed: connection reset", err.Error())
	assert.True(t, IsStore(err))
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, NewStoreError("noop", nil))
}

func TestAccessErrors(t *testing.T) {
	assert.True(t, IsAuthentication(NewAuthenticationError("INVALID_PASSWORD", "invalid password")))
	assert.True(t, IsAuthentication(ErrMissingSession))
	assert.True(t, IsAuthorization(fmt.Errorf("apply: %w", ErrNotAdministrator)))
	assert.False(t, IsAuthorization(ErrMissingSession))

	notLinked := NewNotLinkedError("uid-1")
	assert.True(t, IsNotLinked(notLinked))
	assert.Equal(t, "no team is linked to this account", notLinked.Error())
}
