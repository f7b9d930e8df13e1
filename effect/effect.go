// Package effect holds the pure numeric core of the engine: the progress
// signal, the on/off effect summary and the verdict classifier.
package effect

type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

type Category string

const (
	CategoryWorks         Category = "works"
	CategoryNoEffect      Category = "no_effect"
	CategoryInconsistent  Category = "inconsistent"
	CategoryNeedsMoreData Category = "needs_more_data"
)

// Decisive reports whether the category can lock a rule.
func (c Category) Decisive() bool {
	return c == CategoryWorks || c == CategoryNoEffect
}

// Summary describes the on-vs-off effect observed in one analysis window.
type Summary struct {
	Direction  Direction `json:"direction"`
	Magnitude  float64   `json:"magnitude"`
	Confidence float64   `json:"confidence"`
	NOn        int       `json:"n_on"`
	NOff       int       `json:"n_off"`
	MeanOn     float64   `json:"mean_on"`
	MeanOff    float64   `json:"mean_off"`
}

// Trend is the normalized per-day drift of the outcome score.
type Trend struct {
	Delta float64 `json:"delta"`
	Days  int     `json:"days"`
}

// Signal is the bounded indicator shown next to a supplement.
type Signal struct {
	N          int `json:"n"`
	EffectPct  int `json:"effectPct"`
	Confidence int `json:"confidence"`
}

const (
	DefaultRequiredCleanDays = 12

	worksConfidence    = 0.7
	worksMagnitude     = 0.05
	disagreeConfidence = 0.5
	trendThreshold     = 0.02
)

// Classify maps the available evidence to a verdict. Tiers are checked in
// order and never combined; every comparison is strict.
func Classify(primary, secondary *Summary, trend *Trend) Category {
	if primary != nil && primary.Confidence > worksConfidence {
		if primary.Magnitude > worksMagnitude {
			return CategoryWorks
		}
		return CategoryNoEffect
	}
	if primary != nil && secondary != nil &&
		signsDisagree(primary.Magnitude, secondary.Magnitude) &&
		primary.Confidence > disagreeConfidence {
		return CategoryInconsistent
	}
	if trend != nil && (trend.Delta > trendThreshold || trend.Delta < -trendThreshold) {
		return CategoryInconsistent
	}
	return CategoryNeedsMoreData
}

func signsDisagree(a, b float64) bool {
	return (a > 0 && b < 0) || (a < 0 && b > 0)
}

// NewSignal builds the display signal for a pair.
func NewSignal(cleanDays, required int, s *Summary) Signal {
	sig := Signal{
		N:         cleanDays,
		EffectPct: ComputeSignal(float64(cleanDays), float64(required)),
	}
	if s != nil {
		sig.Confidence = int(clamp(s.Confidence, 0, 1)*100 + 0.5)
	}
	return sig
}
