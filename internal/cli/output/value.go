package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LocalTimeFormat is the format used for displaying local times.
const LocalTimeFormat = "Mon Jan 2 15:04:05.000 2006"

// MaxArrayElements is how many array elements FormatValue shows.
const MaxArrayElements = 8

// FormatValue renders a decoded PV value: numbers in their shortest form,
// arrays in brackets cut after MaxArrayElements with the remaining count.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case []any:
		parts := make([]string, 0, min(len(x), MaxArrayElements)+1)
		for i, e := range x {
			if i == MaxArrayElements {
				parts = append(parts, fmt.Sprintf("... (%d more)", len(x)-i))
				break
			}
			parts = append(parts, FormatValue(e))
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

// FormatUptime converts a duration string to a human-readable format.
// Input is expected to be a Go duration string (e.g., "72h30m15s").
// Returns a formatted string like "3d 0h 30m 15s" or the original string if parsing fails.
func FormatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatTime returns t in local time, or "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(LocalTimeFormat)
}
