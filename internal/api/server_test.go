package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
)

type fakeStore struct {
	civic.Store
	stats   civic.Stats
	pingErr error
}

func (s *fakeStore) Stats(context.Context) (civic.Stats, error) { return s.stats, nil }

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

type fakeRunner struct {
	limit   int
	summary civic.Summary
	err     error
}

func (r *fakeRunner) Run(_ context.Context, limit int) (civic.Summary, error) {
	r.limit = limit
	return r.summary, r.err
}

func newTestServer(store civic.Store, runner Runner) *Server {
	return NewServer(store, runner, Config{BatchLimit: 20}, zap.NewNop())
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{}, &fakeRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReportsStoreDown(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{pingErr: errors.New("down")}, &fakeRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStats(t *testing.T) {
	t.Parallel()

	store := &fakeStore{stats: civic.Stats{
		TotalArticles:    12,
		TotalProjects:    3,
		ProjectsByStatus: map[civic.Status]int{civic.StatusApproved: 2},
	}}
	srv := newTestServer(store, &fakeRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got civic.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 12, got.TotalArticles)
	require.Equal(t, 2, got.ProjectsByStatus[civic.StatusApproved])
}

func TestRunUsesConfiguredLimit(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{summary: civic.Summary{Attempted: 5, Extracted: 3, Created: 1, Attached: 2}}
	srv := newTestServer(&fakeStore{}, runner)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 20, runner.limit)

	var got civic.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, runner.summary, got)
}

func TestRunLimitOverride(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	srv := newTestServer(&fakeStore{}, runner)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/run?limit=3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, runner.limit)
}

func TestRunRejectsBadLimit(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{}, &fakeRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/run?limit=zero", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunAbortReturnsPartialSummary(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		summary: civic.Summary{Attempted: 2, Extracted: 1},
		err:     errors.New("store gone"),
	}
	srv := newTestServer(&fakeStore{}, runner)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/run", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"attempted":2`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{}, &fakeRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
