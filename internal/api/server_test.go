package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/evacsim/internal/config"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/entropy"
	"github.com/talgya/evacsim/internal/persistence"
)

func newServer(t *testing.T, withDB bool) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Pedestrians = 12
	cfg.Runs = 2

	sim, err := engine.NewSimulation(cfg, entropy.New(4), nil)
	require.NoError(t, err)
	srv := &Server{Sim: sim, Eng: engine.NewEngine(sim)}

	if withDB {
		db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		srv.DB = db
	}
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestStatusAndConfig(t *testing.T) {
	srv := newServer(t, false)
	srv.SetBatch("batch-1")
	h := srv.Handler()

	var status map[string]any
	decode(t, get(t, h, "/api/v1/status"), &status)
	assert.Equal(t, "batch-1", status["batch_id"])
	assert.Equal(t, false, status["running"])
	assert.Equal(t, float64(srv.Sim.Topology.Rows()), status["rows"])
	assert.Equal(t, float64(4), status["seed"])

	var cfg config.Config
	decode(t, get(t, h, "/api/v1/config"), &cfg)
	assert.Equal(t, srv.Sim.Config, cfg)
}

func TestSnapshotFollowsEngine(t *testing.T) {
	srv := newServer(t, false)
	h := srv.Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/snapshot").Code)

	srv.Eng.OnStep = srv.ObserveStep
	report, err := srv.Eng.RunBatch()
	require.NoError(t, err)
	last := report.Runs[len(report.Runs)-1]

	var snap struct {
		Run       int   `json:"run"`
		Step      int   `json:"step"`
		Rows      int   `json:"rows"`
		Cols      int   `json:"cols"`
		Occupied  int   `json:"occupied"`
		Occupancy []int `json:"occupancy"`
		Dynamic   []int `json:"dynamic"`
	}
	decode(t, get(t, h, "/api/v1/snapshot"), &snap)
	assert.Equal(t, last.Index, snap.Run)
	assert.Equal(t, last.Steps, snap.Step)
	assert.Equal(t, last.Remaining, snap.Occupied)
	assert.Len(t, snap.Occupancy, snap.Rows*snap.Cols)
	assert.Len(t, snap.Dynamic, snap.Rows*snap.Cols)
}

func TestStaticField(t *testing.T) {
	srv := newServer(t, false)

	var body struct {
		Rows        int       `json:"rows"`
		Cols        int       `json:"cols"`
		Unreachable float64   `json:"unreachable"`
		Values      []float64 `json:"values"`
	}
	decode(t, get(t, srv.Handler(), "/api/v1/static"), &body)
	topo := srv.Sim.Topology
	require.Len(t, body.Values, topo.Size())
	assert.Equal(t, topo.Diagonal(), body.Unreachable)
	for _, c := range topo.ExitCells() {
		assert.Zero(t, body.Values[topo.Index(c)])
	}
}

func TestRuns(t *testing.T) {
	srv := newServer(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/api/v1/runs").Code)

	srv = newServer(t, true)
	h := srv.Handler()
	id, err := srv.DB.StartBatch(srv.Sim.Config, srv.Sim.Seed())
	require.NoError(t, err)
	srv.Eng.OnRunEnd = func(r engine.RunResult) {
		require.NoError(t, srv.DB.SaveRun(id, r))
	}
	_, err = srv.Eng.RunBatch()
	require.NoError(t, err)

	var recent []persistence.RunRecord
	decode(t, get(t, h, "/api/v1/runs?limit=1"), &recent)
	require.Len(t, recent, 1)
	assert.Equal(t, 1, recent[0].RunIndex)

	var batch []persistence.RunRecord
	decode(t, get(t, h, "/api/v1/runs?batch="+id), &batch)
	require.Len(t, batch, 2)
	assert.Equal(t, 0, batch[0].RunIndex)

	var none []persistence.RunRecord
	decode(t, get(t, h, "/api/v1/runs?batch=missing"), &none)
	assert.Empty(t, none)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/runs?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/runs?limit=abc").Code)
}

func TestReadOnly(t *testing.T) {
	h := newServer(t, false).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitedEndpoints(t *testing.T) {
	srv := newServer(t, false)
	srv.RateLimit = 2
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/static").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/static").Code)
	rec := get(t, h, "/api/v1/static")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Status is not limited.
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/status").Code)
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 60, rl.RetryAfter("a"))

	now = now.Add(30 * time.Second)
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 30, rl.RetryAfter("a"))

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("a"))
	assert.Zero(t, rl.RetryAfter("nobody"))
}

func TestClientAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", clientAddr(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientAddr(r))
}
