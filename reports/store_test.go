package reports

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplement-effects/models"
	"supplement-effects/testutil"
)

func report(i int) *models.TruthReport {
	pre := float64(i)
	return &models.TruthReport{
		UserID:           "u1",
		UserSupplementID: "us1",
		EffectCategory:   fmt.Sprintf("category-%d", i),
		EffectDirection:  "positive",
		EffectMagnitude:  float64(i) / 10,
		EffectConfidence: 0.5,
		PreStartAverage:  &pre,
		DaysOn:           i,
		CleanDays:        i,
	}
}

func countRows(t *testing.T, s Store) int {
	t.Helper()
	m, err := s.ListByUser(context.Background(), nil, "u1")
	require.NoError(t, err)
	return len(m)
}

func TestPersistSingleKeepsOneRow(t *testing.T) {
	db := testutil.DB(t)
	s := NewStore(db, testutil.Logger(t))
	ctx := context.Background()

	calls := 0
	for _, checkpoint := range []int{1, 2, 10} {
		for calls < checkpoint {
			calls++
			require.NoError(t, s.PersistSingle(ctx, nil, report(calls)))
		}
		var count int64
		require.NoError(t, db.Model(&models.TruthReport{}).
			Where("user_id = ? AND user_supplement_id = ?", "u1", "us1").
			Count(&count).Error)
		assert.EqualValues(t, 1, count, "after %d calls", calls)

		got, err := s.ListByUser(ctx, nil, "u1")
		require.NoError(t, err)
		row := got["us1"]
		assert.Equal(t, fmt.Sprintf("category-%d", calls), row.EffectCategory, "last write wins")
		assert.Equal(t, calls, row.DaysOn)
		require.NotNil(t, row.PreStartAverage)
		assert.Equal(t, float64(calls), *row.PreStartAverage)
	}
}

func TestPersistSingleKeepsRowID(t *testing.T) {
	db := testutil.DB(t)
	s := NewStore(db, testutil.Logger(t))
	ctx := context.Background()

	first := report(1)
	require.NoError(t, s.PersistSingle(ctx, nil, first))
	require.NoError(t, s.PersistSingle(ctx, nil, report(2)))

	got, err := s.ListByUser(ctx, nil, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got["us1"].ID)
}

func TestPersistSingleConcurrentWriters(t *testing.T) {
	db := testutil.DB(t)
	s := NewStore(db, testutil.Logger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.PersistSingle(ctx, nil, report(i))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, countRows(t, s))
}

func TestPersistSingleValidation(t *testing.T) {
	db := testutil.DB(t)
	s := NewStore(db, testutil.Logger(t))
	ctx := context.Background()

	cases := map[string]*models.TruthReport{
		"nil":                nil,
		"no user":            {UserSupplementID: "us1"},
		"no user supplement": {UserID: "u1"},
		"confidence above 1": {UserID: "u1", UserSupplementID: "us1", EffectConfidence: 1.5},
		"negative days":      {UserID: "u1", UserSupplementID: "us1", NoisyDays: -1},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.PersistSingle(ctx, nil, r), ErrInvalidReport)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.TruthReport{}).Count(&count).Error)
	assert.Zero(t, count, "validation failures never write")
}

func TestPersistSinglePropagatesDBErrors(t *testing.T) {
	db := testutil.DB(t)
	s := NewStore(db, testutil.Logger(t))
	require.NoError(t, db.Migrator().DropTable(&models.TruthReport{}))

	err := s.PersistSingle(context.Background(), nil, report(1))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidReport)
}

func TestCountByCategory(t *testing.T) {
	s := NewStore(testutil.DB(t), testutil.Logger(t))
	ctx := context.Background()

	for i, cat := range []string{"works", "works", "no_effect"} {
		require.NoError(t, s.PersistSingle(ctx, nil, &models.TruthReport{
			UserID:           "u1",
			UserSupplementID: fmt.Sprintf("us%d", i),
			EffectCategory:   cat,
		}))
	}
	counts, err := s.CountByCategory(ctx, nil, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"works": 2, "no_effect": 1}, counts)
}
