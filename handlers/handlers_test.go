package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"supplement-effects/batch"
	"supplement-effects/cache"
	"supplement-effects/checkins"
	"supplement-effects/lifecycle"
	"supplement-effects/models"
	"supplement-effects/reports"
	"supplement-effects/supplements"
	"supplement-effects/testutil"
)

var testNow = time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)

type fakeRecomputer struct {
	users    []string
	priority batch.Priority
	err      error
}

func (f *fakeRecomputer) Run(_ context.Context, p batch.Priority) (batch.Result, error) {
	f.priority = p
	if f.err != nil {
		return batch.Result{}, f.err
	}
	return batch.Result{
		Priority:   p,
		Considered: 2,
		Succeeded:  1,
		Failed:     1,
		Users: map[string]batch.UserResult{
			"a": {UserID: "a", Insights: 2},
			"b": {UserID: "b", Failed: true, Error: "boom"},
		},
	}, nil
}

func (f *fakeRecomputer) RecomputeUser(_ context.Context, userID string, p batch.Priority) (int, error) {
	f.users = append(f.users, userID)
	f.priority = p
	return 3, f.err
}

type env struct {
	db          *gorm.DB
	router      *gin.Engine
	now         time.Time
	supplements supplements.Store
	reports     reports.Store
	cache       *cache.Memory
	recomputer  *fakeRecomputer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)

	e := &env{
		db:          db,
		now:         testNow,
		supplements: supplements.NewStore(db, log),
		reports:     reports.NewStore(db, log),
		cache:       cache.NewMemory(nil),
		recomputer:  &fakeRecomputer{},
	}
	clock := func() time.Time { return e.now }
	machine := lifecycle.NewMachine(12, 30*24*time.Hour)

	e.router = NewRouter(RouterConfig{
		Log:         log,
		ServiceName: "test",
		Checkins:    NewCheckinHandler(log, checkins.NewStore(db, log), 10, clock),
		Supplements: NewSupplementHandler(log, e.supplements, e.reports, machine, clock),
		Effects:     NewEffectsHandler(log, e.reports, e.cache, time.Minute),
		Recompute:   NewRecomputeHandler(log, e.recomputer),
		Health:      NewHealthHandler(db),
	})
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *env) track(t *testing.T, userID, supplementID, name string) CockpitSupplement {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/users/"+userID+"/supplements", gin.H{"supplement_id": supplementID, "name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[CockpitSupplement](t, w)
}

func TestUpsertEntry(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/users/u1/entries", gin.H{
		"local_date":        "2026-04-30",
		"metrics":           gin.H{"energy": 7, "pain": 2},
		"supplement_intake": gin.H{"mag": 200},
		"tags":              []string{"travel"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/users/u1/entries", gin.H{"local_date": "2026-04-30", "metrics": gin.H{"energy": 8}})
	require.Equal(t, http.StatusOK, w.Code)
	var count int64
	require.NoError(t, e.db.Model(&models.DailyEntry{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	w = e.do(t, http.MethodPost, "/api/users/u1/entries", gin.H{"local_date": "2026-04-29", "metrics": gin.H{"energy": 8}})
	assert.Equal(t, http.StatusConflict, w.Code, "past days are locked")

	w = e.do(t, http.MethodPost, "/api/users/u1/entries", gin.H{"local_date": "2026-04-30", "metrics": gin.H{"energy": 11}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/users/u1/entries", gin.H{"metrics": gin.H{"energy": 5}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpsertEntryUsesTimezone(t *testing.T) {
	e := newEnv(t)
	e.now = time.Date(2026, 4, 30, 23, 30, 0, 0, time.UTC)

	w := e.do(t, http.MethodPost, "/api/users/u1/entries", gin.H{
		"local_date": "2026-05-01",
		"timezone":   "Asia/Tokyo",
		"metrics":    gin.H{"energy": 6},
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/users/u1/entries", gin.H{"local_date": "2026-04-30", "timezone": "Mars/Olympus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpsertLogLastWriteWins(t *testing.T) {
	e := newEnv(t)
	for _, taken := range []bool{true, false} {
		w := e.do(t, http.MethodPost, "/api/users/u1/supplement-logs", gin.H{
			"supplement_id": "mag",
			"local_date":    "2026-04-28",
			"taken":         taken,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	var logs []models.SupplementLog
	require.NoError(t, e.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Taken)

	w := e.do(t, http.MethodPost, "/api/users/u1/supplement-logs", gin.H{"supplement_id": "mag", "local_date": "2026-04-28"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "taken is required")
}

func TestCreateSupplement(t *testing.T) {
	e := newEnv(t)
	card := e.track(t, "u1", "mag", "Magnesium")
	assert.NotEmpty(t, card.ID)
	assert.Equal(t, lifecycle.StatusGatheringEvidence, card.Status)
	assert.Nil(t, card.Trial)
	assert.Equal(t, 0, card.Signal.EffectPct)

	w := e.do(t, http.MethodPost, "/api/users/u1/supplements", gin.H{"supplement_id": "mag", "name": "Magnesium"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/api/users/u1/supplements", gin.H{"supplement_id": "d3", "name": "D3", "monthly_cost": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartTrial(t *testing.T) {
	e := newEnv(t)
	card := e.track(t, "u1", "mag", "Magnesium")
	path := "/api/user-supplements/" + card.ID + "/trial"

	w := e.do(t, http.MethodPost, path, gin.H{"type": "ON_OFF", "total_days": 14})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[CockpitSupplement](t, w)
	assert.Equal(t, lifecycle.StatusTrial, got.Status)
	require.NotNil(t, got.Trial)
	assert.Equal(t, 1, got.Trial.Day)
	assert.Equal(t, 14, got.Trial.TotalDays)

	w = e.do(t, http.MethodPost, path, gin.H{"type": "ON_OFF", "total_days": 7})
	assert.Equal(t, http.StatusConflict, w.Code, "trial already running")

	w = e.do(t, http.MethodPost, path, gin.H{"type": "ON_OFF", "total_days": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/user-supplements/missing/trial", gin.H{"type": "DOSE", "total_days": 7})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetestCooldown(t *testing.T) {
	e := newEnv(t)
	card := e.track(t, "u1", "mag", "Magnesium")
	locked := testNow.Add(-10 * 24 * time.Hour)
	require.NoError(t, e.supplements.SaveState(context.Background(), nil, card.ID, lifecycle.State{
		Status:    lifecycle.StatusRule,
		LockedAt:  &locked,
		CleanDays: 14,
	}))
	path := "/api/user-supplements/" + card.ID + "/trial"

	w := e.do(t, http.MethodPost, path, gin.H{"type": "ISOLATE", "total_days": 7})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "retest_cooldown", body["code"])
	assert.NotEmpty(t, body["retestAvailableAt"])

	e.now = locked.Add(30 * 24 * time.Hour)
	w = e.do(t, http.MethodPost, path, gin.H{"type": "ISOLATE", "total_days": 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, lifecycle.StatusTrial, decode[CockpitSupplement](t, w).Status)
}

func TestEffectsAreCached(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	card := e.track(t, "u1", "mag", "Magnesium")
	pre, post := 5.5, 6.75
	require.NoError(t, e.reports.PersistSingle(ctx, nil, &models.TruthReport{
		UserID:           "u1",
		UserSupplementID: card.ID,
		EffectCategory:   "works",
		EffectDirection:  "positive",
		EffectMagnitude:  0.9,
		EffectConfidence: 0.8,
		PreStartAverage:  &pre,
		PostStartAverage: &post,
		DaysOn:           8,
		DaysOff:          7,
		CleanDays:        15,
		Status:           string(lifecycle.StatusRule),
	}))

	w := e.do(t, http.MethodGet, "/api/users/u1/effects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "miss", w.Header().Get("X-Cache"))
	effects := decode[map[string]EffectRecord](t, w)
	require.Contains(t, effects, card.ID)
	rec := effects[card.ID]
	assert.Equal(t, "works", rec.EffectCategory)
	assert.Equal(t, 0.8, rec.EffectConfidence)
	require.NotNil(t, rec.PostStartAverage)
	assert.Equal(t, post, *rec.PostStartAverage)

	w = e.do(t, http.MethodGet, "/api/users/u1/effects", nil)
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))
	assert.Equal(t, effects, decode[map[string]EffectRecord](t, w))

	w = e.do(t, http.MethodGet, "/api/users/u2/effects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[map[string]EffectRecord](t, w))
}

func TestCockpitAndStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mag := e.track(t, "u1", "mag", "Magnesium")
	e.track(t, "u1", "d3", "Vitamin D3")

	require.NoError(t, e.supplements.SaveState(ctx, nil, mag.ID, lifecycle.State{
		Status:    lifecycle.StatusGatheringEvidence,
		CleanDays: 6,
	}))
	require.NoError(t, e.reports.PersistSingle(ctx, nil, &models.TruthReport{
		UserID:           "u1",
		UserSupplementID: mag.ID,
		EffectCategory:   "needs_more_data",
		EffectDirection:  "positive",
		EffectMagnitude:  0.3,
		EffectConfidence: 0.456,
		CleanDays:        6,
		Status:           string(lifecycle.StatusGatheringEvidence),
	}))

	w := e.do(t, http.MethodGet, "/api/users/u1/cockpit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cards := decode[[]CockpitSupplement](t, w)
	require.Len(t, cards, 2)
	assert.Equal(t, "Magnesium", cards[0].Name)
	assert.Equal(t, 6, cards[0].Signal.N)
	assert.Equal(t, 50, cards[0].Signal.EffectPct)
	assert.Equal(t, 46, cards[0].Signal.Confidence)
	require.NotNil(t, cards[0].Category)
	assert.EqualValues(t, "needs_more_data", *cards[0].Category)
	assert.Nil(t, cards[1].Category)

	w = e.do(t, http.MethodGet, "/api/users/u1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]int64](t, w)
	assert.EqualValues(t, 1, stats["total"])
	assert.EqualValues(t, 1, stats["needs_more_data"])
	assert.EqualValues(t, 0, stats["works"])
}

func TestRecomputeUser(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/users/u1/recompute?priority=high", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 3, body["insights"])
	assert.Equal(t, []string{"u1"}, e.recomputer.users)
	assert.Equal(t, batch.PriorityHigh, e.recomputer.priority)

	w = e.do(t, http.MethodPost, "/api/users/u1/recompute?priority=asap", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.recomputer.err = errors.New("db down")
	w = e.do(t, http.MethodPost, "/api/users/u1/recompute", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCronRecompute(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/cron/recompute?priority=normal", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[batch.Result](t, w)
	assert.Equal(t, 2, res.Considered)
	assert.True(t, res.Users["b"].Failed)
	assert.Equal(t, "boom", res.Users["b"].Error)
	assert.Equal(t, batch.PriorityNormal, e.recomputer.priority)

	w = e.do(t, http.MethodPost, "/api/cron/recompute", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, batch.PriorityLow, e.recomputer.priority, "cron defaults to low")

	w = e.do(t, http.MethodPost, "/api/cron/recompute?priority=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.recomputer.err = errors.New("db down")
	w = e.do(t, http.MethodPost, "/api/cron/recompute", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
