package validate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampLaws(t *testing.T) {
	assert.Equal(t, 0, CheckHour(-5))
	assert.Equal(t, 23, CheckHour(99))
	assert.Equal(t, 0, CheckMinute(-1))
	assert.Equal(t, 59, CheckMinute(70))
	assert.Equal(t, 59, CheckSecond(59.9))
	assert.Equal(t, 7, CheckHour(7.99))
	assert.Equal(t, 0, CheckSecond(math.NaN()))
	assert.Equal(t, 23, CheckHour(23))
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name string
		in   SignupInput
		want error
	}{
		{"ok", SignupInput{"a@x.com", "pw", "pw"}, nil},
		{"empty email", SignupInput{"", "pw", "pw"}, ErrMissingField},
		{"empty confirm", SignupInput{"a@x.com", "pw", ""}, ErrMissingField},
		{"empty password wins over mismatch", SignupInput{"a@x.com", "", "pw"}, ErrMissingField},
		{"mismatch", SignupInput{"a@x.com", "pw", "px"}, ErrPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Signup(tt.in)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLogin(t *testing.T) {
	assert.NoError(t, Login(LoginInput{"a@x.com", "pw"}))
	assert.ErrorIs(t, Login(LoginInput{"a@x.com", ""}), ErrMissingField)
}

func TestRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.NoError(t, Record(RecordInput{StartedAt: now, EndedAt: now.Add(time.Minute)}))
	assert.NoError(t, Record(RecordInput{StartedAt: now, EndedAt: now}))
	assert.ErrorIs(t, Record(RecordInput{StartedAt: now, EndedAt: now.Add(-time.Second)}), ErrInvalidRange)
	assert.ErrorIs(t, Record(RecordInput{EndedAt: now}), ErrMissingField)
}

func TestBlank(t *testing.T) {
	assert.True(t, Blank(""))
	assert.True(t, Blank(" \t\n"))
	assert.False(t, Blank(" run "))
}
