package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/evacsim/internal/config"
	"github.com/talgya/evacsim/internal/engine"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "evacsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBatchLifecycle(t *testing.T) {
	db := openTemp(t)
	cfg := config.Default()
	cfg.Runs = 2
	cfg.Pedestrians = 42

	id, err := db.StartBatch(cfg, 99)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	last, err := db.GetMeta("last_batch")
	require.NoError(t, err)
	assert.Equal(t, id, last)

	results := []engine.RunResult{
		{Index: 0, Steps: 12, EvacSteps: 11, EvacTime: 11 * engine.StepDuration, Evacuated: true, WallClock: time.Millisecond},
		{Index: 1, Steps: 5, EvacSteps: 4, EvacTime: 4 * engine.StepDuration, Remaining: 3, WallClock: time.Millisecond},
	}
	for _, r := range results {
		require.NoError(t, db.SaveRun(id, r))
	}
	report := engine.NewReport(cfg, results, time.Second, false)
	require.NoError(t, db.FinishBatch(id, report))

	b, err := db.Batch(id)
	require.NoError(t, err)
	assert.Equal(t, int64(99), b.Seed)
	_, err = time.Parse(time.RFC3339, b.StartedAt)
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Runs)
	assert.InDelta(t, report.MeanEvacTime, b.MeanEvacTime, 1e-12)
	assert.InDelta(t, report.StdEvacTime, b.StdEvacTime, 1e-12)
	assert.InDelta(t, 1.0, b.WallSeconds, 1e-12)

	stored, err := db.BatchConfig(id)
	require.NoError(t, err)
	assert.Equal(t, cfg, stored)

	runs, err := db.BatchRuns(id)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 0, runs[0].RunIndex)
	assert.True(t, runs[0].Evacuated)
	assert.Equal(t, 11, runs[0].EvacSteps)
	assert.False(t, runs[1].Evacuated)
	assert.Equal(t, 3, runs[1].Remaining)
	assert.NotEqual(t, runs[0].ID, runs[1].ID)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	db := openTemp(t)
	id, err := db.StartBatch(config.Default(), 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.SaveRun(id, engine.RunResult{Index: i, Steps: i + 1}))
	}

	runs, err := db.RecentRuns(3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []int{4, 3, 2}, []int{runs[0].RunIndex, runs[1].RunIndex, runs[2].RunIndex})
	for _, r := range runs {
		assert.Equal(t, id, r.BatchID)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTemp(t)
	id, err := db.StartBatch(config.Default(), 1)
	require.NoError(t, err)

	snap := engine.Snapshot{
		Run:       1,
		Step:      7,
		Rows:      2,
		Cols:      3,
		Occupancy: []uint8{0, 1, 0, 1, 0, 0},
		Dynamic:   []int{0, 2, 0, 5, 1, 0},
		Occupied:  2,
	}
	require.NoError(t, db.SaveSnapshot(id, snap))

	got, err := db.Snapshot(id, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, snap.Occupancy, got.Occupancy)
	assert.Equal(t, snap.Dynamic, got.Dynamic)
	assert.Equal(t, 2, got.Occupied)

	_, err = db.Snapshot(id, 1, 8)
	assert.Error(t, err)
}

func TestMissingBatch(t *testing.T) {
	db := openTemp(t)
	_, err := db.Batch("nope")
	assert.Error(t, err)
	_, err = db.GetMeta("last_batch")
	assert.Error(t, err)
}
