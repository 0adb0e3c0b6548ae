package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"integer valued", 80.0, "80"},
		{"fraction", 72.5, "72.5"},
		{"string", "HEAT", "HEAT"},
		{"array", []any{1.0, 2.0, 3.5}, "[1 2 3.5]"},
		{"string array", []any{"a", "b"}, "[a b]"},
		{"long array", []any{0.0, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0}, "[0 1 2 3 4 5 6 7 ... (2 more)]"},
		{"bool", true, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "3d 0h 30m 15s", FormatUptime("72h30m15s"))
	assert.Equal(t, "2h 0m 1s", FormatUptime("2h0m1s"))
	assert.Equal(t, "1m 5s", FormatUptime("65s"))
	assert.Equal(t, "9s", FormatUptime("9s"))
	assert.Equal(t, "soon", FormatUptime("soon"))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, ts.Local().Format(LocalTimeFormat), FormatTime(ts))
}
