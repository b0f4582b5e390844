package engine

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Recency returns the decay factor for a memory last updated at updatedAt:
// 1 at age zero, 0.5 after one half-life. Future timestamps count as age zero.
func Recency(now, updatedAt time.Time, halfLifeDays float64) float64 {
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1
	}
	if halfLifeDays <= 0 {
		return 0
	}
	days := float64(age) / float64(day)
	return clamp01(math.Exp(-math.Ln2 * days / halfLifeDays))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
