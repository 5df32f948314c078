// Package display turns chat state into the labels the dashboard renders.
// Stored data keeps real instants and byte counts; only this package decides
// how they read.
package display

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

const (
	previewLength  = 80
	maxUnreadLabel = 99
)

// Timestamp renders t relative to now the way a chat list does: a clock time
// for today, "Yesterday", a weekday within the last week, then a relative age.
func Timestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.After(now) {
		return t.Format("15:04")
	}

	today := startOfDay(now)
	switch {
	case !t.Before(today):
		return t.Format("15:04")
	case !t.Before(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case !t.Before(today.AddDate(0, 0, -6)):
		return t.Weekday().String()
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Size renders an attachment size. Unknown sizes render empty.
func Size(bytes int64) string {
	if bytes <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(bytes))
}

// Count renders a large number with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// UnreadBadge renders the unread counter, capped at "99+".
func UnreadBadge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > maxUnreadLabel:
		return strconv.Itoa(maxUnreadLabel) + "+"
	default:
		return strconv.Itoa(n)
	}
}

// Truncate shortens s to at most limit runes, adding an ellipsis when cut.
func Truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
