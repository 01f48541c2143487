package meeting

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addWeeks returns the end date of a plan of n weeks starting at start.
func addWeeks(start time.Time, n int) time.Time {
	return start.AddDate(0, 0, 7*n)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
