package ops

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dprod-run/dprod/internal/metrics"
	"github.com/dprod-run/dprod/internal/status"
	"github.com/stretchr/testify/require"
)

// newTestRouter returns the handler that New wires into the ops server, so
// the tests exercise the real /healthz and /metrics routes.
func newTestRouter(t *testing.T, store *status.Store) http.Handler {
	t.Helper()
	return New(":0", metrics.NewCollector(), store).httpServer.Handler
}

func TestHealthzReportsOKWithReachableStore(t *testing.T) {
	store, err := status.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := newTestRouter(t, store)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
