package utils

import (
	"fmt"
	"time"
)

// Now returns current time (overridable in tests)
var Now = time.Now

// Since returns time since given time, using Now
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// IsExpired checks if a timestamp is expired
func IsExpired(timestamp time.Time, ttl time.Duration) bool {
	return Now().Sub(timestamp) > ttl
}

// TimeUntilExpiry returns time until expiry, never negative
func TimeUntilExpiry(timestamp time.Time, ttl time.Duration) time.Duration {
	remaining := timestamp.Add(ttl).Sub(Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FormatDuration formats duration in human-readable format
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
