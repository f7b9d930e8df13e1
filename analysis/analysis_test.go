package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"supplement-effects/config"
	"supplement-effects/effect"
	"supplement-effects/lifecycle"
	"supplement-effects/models"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(config.Default().Engine)
	require.NoError(t, err)
	return a
}

func entry(day int, energy float64, intake map[string]float64, tags ...string) models.DailyEntry {
	return models.DailyEntry{
		UserID:           "u1",
		LocalDate:        FormatDate(start.AddDate(0, 0, day)),
		Metrics:          datatypes.NewJSONType(map[string]float64{"energy": energy}),
		SupplementIntake: datatypes.NewJSONType(intake),
		Tags:             datatypes.JSONSlice[string](tags),
	}
}

// alternating on/off days with a clear separation between the groups
func alternating(days int, onBase, offBase float64) []models.DailyEntry {
	jitter := []float64{-0.5, 0, 0.5}
	var out []models.DailyEntry
	for d := 0; d < days; d++ {
		j := jitter[(d/2)%3]
		if d%2 == 0 {
			out = append(out, entry(d, onBase+j, map[string]float64{"mag": 200}))
		} else {
			out = append(out, entry(d, offBase+j, nil))
		}
	}
	return out
}

func TestAnalyzeWorks(t *testing.T) {
	a := newAnalyzer(t)
	res, err := a.Analyze(Input{
		SupplementID: "mag",
		Entries:      alternating(40, 8, 5),
		Since:        start,
		Until:        start.AddDate(0, 0, 39),
	})
	require.NoError(t, err)

	assert.Equal(t, 40, res.ObservedDays)
	assert.Equal(t, 40, res.CleanDays)
	assert.Equal(t, 0, res.NoisyDays)
	assert.Equal(t, 20, res.DaysOn)
	assert.Equal(t, 20, res.DaysOff)
	require.NotNil(t, res.Primary)
	require.NotNil(t, res.Secondary)
	assert.Equal(t, effect.DirectionPositive, res.Primary.Direction)
	assert.Greater(t, res.Primary.Confidence, 0.7)
	assert.Equal(t, effect.CategoryWorks, res.Category)
	assert.Nil(t, res.Overlay)
	assert.Equal(t, 100, res.Signal.EffectPct)
	assert.Equal(t, 40, res.Signal.N)

	// the very first day is an on-day, so nothing precedes the start
	assert.Nil(t, res.PreStartAverage)
	require.NotNil(t, res.PostStartAverage)
	assert.InDelta(t, 6.5, *res.PostStartAverage, 0.1)
}

func TestAnalyzeHurting(t *testing.T) {
	a := newAnalyzer(t)
	res, err := a.Analyze(Input{
		SupplementID: "mag",
		Entries:      alternating(40, 3, 7),
		Since:        start,
		Until:        start.AddDate(0, 0, 39),
	})
	require.NoError(t, err)
	assert.Equal(t, effect.CategoryNoEffect, res.Category)
	require.NotNil(t, res.Overlay)
	assert.Equal(t, lifecycle.OverlayHurting, *res.Overlay)
}

func TestAnalyzeNoisyDays(t *testing.T) {
	a := newAnalyzer(t)
	skipped := entry(2, 6, nil)
	skipped.SkippedSupplements = datatypes.JSONSlice[string]{"mag"}
	noMetrics := entry(3, 0, map[string]float64{"mag": 100})
	noMetrics.Metrics = datatypes.NewJSONType(map[string]float64{"steps": 9000})

	res, err := a.Analyze(Input{
		SupplementID: "mag",
		Entries: []models.DailyEntry{
			entry(0, 7, map[string]float64{"mag": 100}),
			entry(1, 6, nil, "sick"),
			skipped,
			noMetrics,
			entry(4, 7, map[string]float64{"mag": 100}, "travel"),
		},
		Since: start,
		Until: start.AddDate(0, 0, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.ObservedDays)
	assert.Equal(t, 2, res.CleanDays)
	assert.Equal(t, 3, res.NoisyDays)
	assert.LessOrEqual(t, res.CleanDays+res.NoisyDays, res.ObservedDays)
	assert.Nil(t, res.Primary)
	assert.Equal(t, effect.CategoryNeedsMoreData, res.Category)
	require.NotNil(t, res.Overlay)
	assert.Equal(t, lifecycle.OverlayConfounded, *res.Overlay)
}

func TestAnalyzeLogsOverrideIntake(t *testing.T) {
	a := newAnalyzer(t)
	entries := []models.DailyEntry{
		entry(0, 7, map[string]float64{"mag": 100}),
		entry(1, 7, nil),
	}
	logs := []models.SupplementLog{
		{UserID: "u1", SupplementID: "mag", LocalDate: FormatDate(start), Taken: false},
		{UserID: "u1", SupplementID: "mag", LocalDate: FormatDate(start.AddDate(0, 0, 1)), Taken: true},
		// log-only day without an entry: observed but noisy (no outcome)
		{UserID: "u1", SupplementID: "mag", LocalDate: FormatDate(start.AddDate(0, 0, 2)), Taken: true},
		// other supplement and out-of-window dates are ignored
		{UserID: "u1", SupplementID: "zinc", LocalDate: FormatDate(start), Taken: true},
		{UserID: "u1", SupplementID: "mag", LocalDate: FormatDate(start.AddDate(0, 0, 30)), Taken: true},
	}
	res, err := a.Analyze(Input{
		SupplementID: "mag",
		Entries:      entries,
		Logs:         logs,
		Since:        start,
		Until:        start.AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ObservedDays)
	assert.Equal(t, 2, res.DaysOn)
	assert.Equal(t, 1, res.DaysOff)
	assert.Equal(t, 2, res.CleanDays)
	assert.Equal(t, 1, res.NoisyDays)
	require.NotNil(t, res.PreStartAverage)
	require.NotNil(t, res.PostStartAverage)
	assert.Equal(t, 7.0, *res.PreStartAverage)
}

func TestOutcome(t *testing.T) {
	metrics := []config.Metric{{Name: "energy", Weight: 1}, {Name: "pain", Weight: -1}}

	v, ok := Outcome(map[string]float64{"energy": 8, "pain": 2}, metrics, 10)
	require.True(t, ok)
	assert.Equal(t, 8.0, v)

	v, ok = Outcome(map[string]float64{"pain": 10}, metrics, 10)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = Outcome(map[string]float64{"mood": 3}, metrics, 10)
	assert.False(t, ok)

	weighted := []config.Metric{{Name: "energy", Weight: 3}, {Name: "sleep", Weight: 1}}
	v, ok = Outcome(map[string]float64{"energy": 8, "sleep": 4}, weighted, 10)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", FormatDate(d))
	_, err = ParseDate("28/02/2026")
	assert.Error(t, err)
}
