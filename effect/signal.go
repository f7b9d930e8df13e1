package effect

import "math"

// ComputeSignal converts a clean-day count into a 0..100 progress value.
// required is floored and never below 1; a non-finite result yields 0.
func ComputeSignal(cleanDays, required float64) int {
	req := math.Floor(required)
	if math.IsNaN(req) || req < 1 {
		req = 1
	}
	pct := cleanDays / req * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return int(math.Floor(clamp(pct, 0, 100)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
