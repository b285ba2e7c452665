package logger

import (
	"strings"
	"time"
)

// Took returns the rounded duration since start.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to whole milliseconds.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// DurationMS returns d in whole milliseconds.
func DurationMS(d time.Duration) int {
	return int(RoundMS(d) / time.Millisecond)
}

// SummarizeStrings joins up to limit items with commas and reports whether
// the list was cut short.
func SummarizeStrings(items []string, limit int) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	if limit <= 0 || len(items) <= limit {
		return strings.Join(items, ","), false
	}
	return strings.Join(items[:limit], ","), true
}
