package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var layouts = []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ParseTime tries RFC3339, RFC3339Nano, a bare datetime or date (read as
// UTC), and unix seconds with an optional fraction.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil && secs > 0 && !math.IsInf(secs, 0) {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)), true
	}
	return time.Time{}, false
}

// MinutesHeld is the whole minutes elapsed between from and to.
func MinutesHeld(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}
