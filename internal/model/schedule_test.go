package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"00:00", 0, false},
		{"08:30", 510, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"8:30", 0, true},
		{"08:60", 0, true},
		{"0830", 0, true},
		{"", 0, true},
		{"ab:cd", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestClock_Add(t *testing.T) {
	assert.Equal(t, "17:00", NewClock(16, 30).Add(30*time.Minute).String())
	assert.Equal(t, "09:15", NewClock(9, 0).Add(15*time.Minute+30*time.Second).String())
}

func TestClock_JSON(t *testing.T) {
	b, err := json.Marshal(NewClock(10, 5))
	require.NoError(t, err)
	assert.Equal(t, `"10:05"`, string(b))

	var c Clock
	require.NoError(t, json.Unmarshal([]byte(`"16:45"`), &c))
	assert.Equal(t, NewClock(16, 45), c)
	assert.Error(t, json.Unmarshal([]byte(`"4pm"`), &c))
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, "2024-06-01", d.String())
	assert.Equal(t, "Saturday, June 1, 2024", d.Long())
	assert.True(t, d.Equal(NewDate(2024, time.June, 1)))
	assert.True(t, d.Before(NewDate(2024, time.June, 2)))

	_, err = ParseDate("06/01/2024")
	assert.Error(t, err)
}

func TestDate_Scan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-06-01", d.String())

	require.NoError(t, d.Scan([]byte("2024-07-04T00:00:00Z")))
	assert.Equal(t, "2024-07-04", d.String())

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-07-04", v)
}
