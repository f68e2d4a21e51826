package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type booking struct {
	Date  string `json:"date" validate:"required,civildate"`
	Start string `json:"start_time" validate:"required,hhmm"`
	End   string `json:"end_time" validate:"omitempty,hhmm"`
}

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	require.NoError(t, Register(v))
	return v
}

func TestRegister_Tags(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name  string
		input booking
		valid bool
	}{
		{"valid", booking{Date: "2024-06-01", Start: "09:30", End: "10:00"}, true},
		{"empty optional", booking{Date: "2024-06-01", Start: "09:30"}, true},
		{"single digit hour", booking{Date: "2024-06-01", Start: "9:30"}, false},
		{"hour out of range", booking{Date: "2024-06-01", Start: "24:00"}, false},
		{"bad date", booking{Date: "2024-02-30", Start: "09:30"}, false},
		{"date with time", booking{Date: "2024-06-01T00:00:00Z", Start: "09:30"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	v := newValidator(t)

	err := v.Struct(booking{Date: "June 1", Start: ""})
	require.Error(t, err)
	assert.Equal(t, "date must be a date in YYYY-MM-DD format; start_time is required", Describe(err))

	assert.Equal(t, "Invalid request body", Describe(errors.New("unexpected EOF")))
}
