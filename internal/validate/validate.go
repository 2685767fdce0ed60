package validate

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var v = validator.New()

var (
	ErrMissingField     = errors.New("there are empty fields")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrInvalidRange     = errors.New("end time is before start time")
)

type SignupInput struct {
	Email           string `validate:"required"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

type LoginInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// RecordInput is a finished activity about to be appended.
type RecordInput struct {
	Title     string
	Notes     string
	StartedAt time.Time `validate:"required"`
	EndedAt   time.Time `validate:"required,gtefield=StartedAt"`
}

func Signup(in SignupInput) error { return check(in) }

func Login(in LoginInput) error { return check(in) }

func Record(in RecordInput) error { return check(in) }

// check runs struct validation and reports the first failure class the way
// a user reads it: empty fields win over mismatches.
func check(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return err
	}
	var mismatch, order bool
	for _, fe := range fes {
		switch fe.Tag() {
		case "required":
			return ErrMissingField
		case "eqfield":
			mismatch = true
		case "gtefield":
			order = true
		}
	}
	if mismatch {
		return ErrPasswordMismatch
	}
	if order {
		return ErrInvalidRange
	}
	return err
}

// Blank reports whether s holds only whitespace.
func Blank(s string) bool { return strings.TrimSpace(s) == "" }

// CheckHour clamps to [0,23], flooring fractions.
func CheckHour(x float64) int { return clamp(x, 23) }

// CheckMinute clamps to [0,59], flooring fractions.
func CheckMinute(x float64) int { return clamp(x, 59) }

// CheckSecond clamps to [0,59], flooring fractions.
func CheckSecond(x float64) int { return clamp(x, 59) }

func clamp(x float64, max int) int {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > float64(max) {
		return max
	}
	return int(math.Floor(x))
}
