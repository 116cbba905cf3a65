package timesheet

import (
	"strconv"
	"strings"
	"time"
)

// dateFormats covers the date shapes seen in scanned sheets. Month-first
// variants are tried before day-first ones.
var dateFormats = []string{
	"2006-01-02",
	"01-02-2006",
	"02-01-2006",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"01.02.2006",
	"02.01.2006",
}

// NormalizeDate coerces a date string in any recognized format to
// YYYY-MM-DD. The second return is false when nothing parses.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	// ISO timestamps: keep the date part.
	if len(s) > 10 && s[4] == '-' && s[7] == '-' {
		if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return s[:10], true
		}
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02"), true
		}
	}
	return "", false
}

// clockFormats accepts 24-hour and 12-hour clock times, with or without
// seconds and AM/PM. Order matters: 24-hour first.
var clockFormats = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04PM",
}

// NormalizeClock coerces a time-of-day string to HH:MM 24-hour form.
func NormalizeClock(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	upper := strings.ToUpper(s)
	for _, format := range clockFormats {
		if t, err := time.Parse(format, upper); err == nil {
			return t.Format("15:04"), true
		}
	}
	return "", false
}

// clockMinutes converts a normalized HH:MM string to minutes after
// midnight.
func clockMinutes(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// ParseLunchMinutes coerces a lunch duration to whole minutes. Accepts
// "HH:MM" and bare numbers; a bare number of 2 or less is read as hours,
// anything larger as minutes.
func ParseLunchMinutes(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ":") {
		parts := strings.SplitN(s, ":", 2)
		hours, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		minutes, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return hours*60 + minutes, true
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if n <= 2 {
		return int(n * 60), true
	}
	return int(n + 0.5), true
}
