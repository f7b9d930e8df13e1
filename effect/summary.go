package effect

import "math"

const (
	MinGroupSize   = 3
	MinTrendDays   = 7
	MaxMagnitude   = 3.0
	neutralBand    = 0.05
	baseConfidence = 4.0
)

// Summarize computes a standardized on-vs-off effect for outcome scores on
// the 0..outcomeRange scale. It returns nil when either group has fewer than
// MinGroupSize days.
//
// magnitude is Cohen's d over the pooled standard deviation, clamped to
// ±MaxMagnitude. confidence is nEff/(nEff+k) where nEff is the harmonic
// group size and k = 4*(1+4*sp/outcomeRange), so it rises with sample size and
// falls with variance while staying inside [0,1).
func Summarize(on, off []float64, outcomeRange float64) *Summary {
	nOn, nOff := len(on), len(off)
	if nOn < MinGroupSize || nOff < MinGroupSize {
		return nil
	}
	if outcomeRange <= 0 {
		outcomeRange = 10
	}

	meanOn, varOn := meanVar(on)
	meanOff, varOff := meanVar(off)
	pooled := ((float64(nOn-1) * varOn) + (float64(nOff-1) * varOff)) / float64(nOn+nOff-2)
	sp := math.Sqrt(pooled)

	diff := meanOn - meanOff
	var d float64
	switch {
	case sp > 0:
		d = diff / sp
	case diff > 0:
		d = MaxMagnitude
	case diff < 0:
		d = -MaxMagnitude
	}
	d = clamp(d, -MaxMagnitude, MaxMagnitude)

	nEff := 2 * float64(nOn) * float64(nOff) / float64(nOn+nOff)
	k := baseConfidence * (1 + 4*sp/outcomeRange)

	return &Summary{
		Direction:  directionOf(d),
		Magnitude:  d,
		Confidence: clamp(nEff/(nEff+k), 0, 1),
		NOn:        nOn,
		NOff:       nOff,
		MeanOn:     meanOn,
		MeanOff:    meanOff,
	}
}

func directionOf(d float64) Direction {
	switch {
	case d > neutralBand:
		return DirectionPositive
	case d < -neutralBand:
		return DirectionNegative
	default:
		return DirectionNeutral
	}
}

// Point is one clean day's outcome at a day offset from the window start.
type Point struct {
	Day     float64
	Outcome float64
}

// TrendOf fits an ordinary least squares line through the points and returns
// its slope per day divided by outcomeRange. Nil below MinTrendDays points or
// when all points share one day.
func TrendOf(points []Point, outcomeRange float64) *Trend {
	n := len(points)
	if n < MinTrendDays {
		return nil
	}
	if outcomeRange <= 0 {
		outcomeRange = 10
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.Day
		sy += p.Outcome
	}
	mx, my := sx/float64(n), sy/float64(n)
	var sxy, sxx float64
	for _, p := range points {
		dx := p.Day - mx
		sxy += dx * (p.Outcome - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return nil
	}
	return &Trend{Delta: (sxy / sxx) / outcomeRange, Days: n}
}

// Mean returns the arithmetic mean, or nil for an empty slice.
func Mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m, _ := meanVar(xs)
	return &m
}

func meanVar(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, ss / float64(len(xs)-1)
}
