package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transaction("signup", cause)

	assert.ErrorIs(t, err, ErrTransaction)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "signup: store transaction failed: connection reset", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrValidation, KindOf(Validation("login", "email is required")))
	assert.Equal(t, ErrConsistency, KindOf(Consistency("delete", "no schedule")))
	assert.Equal(t, ErrAuthProvider, KindOf(AuthProvider("login", errors.New("bad password"))))
	assert.Nil(t, KindOf(errors.New("plain")))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "passwords do not match", UserMessage(Validation("signup", "passwords do not match")))
	assert.Equal(t, "identity provider error", UserMessage(AuthProvider("login", errors.New("x"))))
	assert.Equal(t, "plain", UserMessage(errors.New("plain")))
}
