package model

import (
	"fmt"
	"strings"
	"time"
)

var reminderLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseReminderTime parses a local date-time without zone:
// YYYY-MM-DDTHH:mm, YYYY-MM-DDTHH:mm:ss with optional fraction,
// each optionally followed by a trailing Z which is dropped, not applied.
// The result is truncated to the second and carried in time.UTC.
func ParseReminderTime(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, fmt.Errorf("reminder time is required")
	}
	raw = strings.TrimSuffix(strings.TrimSuffix(raw, "Z"), "z")

	for _, layout := range reminderLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid reminder time %q (want YYYY-MM-DDTHH:mm or YYYY-MM-DDTHH:mm:ss)", s)
}

// WallClock 把 t 的本地时钟读数映射到与 ParseReminderTime 相同的表示
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// FormatReminderTime 提醒邮件中的日期与时间
func FormatReminderTime(t time.Time) (date, clock string) {
	return t.Format("2006-01-02"), t.Format("15:04")
}
