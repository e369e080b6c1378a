package units

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		unit  string
		want  time.Duration
	}{
		{"milliseconds", 1500, "ms", 1500 * time.Millisecond},
		{"seconds", 30, "s", 30 * time.Second},
		{"empty unit defaults to seconds", 30, "", 30 * time.Second},
		{"minutes", 5, "min", 5 * time.Minute},
		{"hours", 2, "hr", 2 * time.Hour},
		{"days", 3, "day", 72 * time.Hour},
		{"fractional values", 1.5, "min", 90 * time.Second},
		{"zero", 0, "s", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Duration(tt.value, tt.unit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDurationUnknownUnit(t *testing.T) {
	_, err := Duration(10, "fortnight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown time unit")
}
