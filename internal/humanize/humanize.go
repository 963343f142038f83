// Package humanize renders durations and timestamps for terminal output.
package humanize

import (
	"fmt"
	"time"
)

// Remaining renders time left on a countdown in whole minutes, rounding up so
// the display never ticks through seconds.
func Remaining(d time.Duration) string {
	totalSeconds := int64(d / time.Second)
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	rest := totalSeconds % 3600
	minutes := (rest + 59) / 60

	switch {
	case hours > 0 && minutes == 60:
		return fmt.Sprintf("%dh", hours+1)
	case hours > 0 && minutes == 0:
		return fmt.Sprintf("%dh", hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return plural(minutes, "minute")
	default:
		return "Less than a minute"
	}
}

// Ago renders how long before now t happened.
func Ago(t, now time.Time) string {
	d := now.Sub(t)
	minutes := int64(d / time.Minute)
	hours := minutes / 60

	switch {
	case hours > 0:
		return plural(hours, "hour") + " ago"
	case minutes > 0:
		return plural(minutes, "minute") + " ago"
	default:
		return "just now"
	}
}

// Minutes renders a session length such as "45m", "2h" or "1h 30m".
func Minutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	if m%60 == 0 {
		return fmt.Sprintf("%dh", m/60)
	}
	return fmt.Sprintf("%dh %dm", m/60, m%60)
}

// DateTime renders t relative to the calendar day of now.
func DateTime(t, now time.Time) string {
	t = t.In(now.Location())
	clock := t.Format("03:04 PM")

	y, m, d := t.Date()
	ny, nm, nd := now.Date()
	if y == ny && m == nm && d == nd {
		return "Today " + clock
	}
	py, pm, pd := now.AddDate(0, 0, -1).Date()
	if y == py && m == pm && d == pd {
		return "Yesterday " + clock
	}
	return t.Format("Jan 2, 03:04 PM")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
