package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTP(reg)

	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/api/v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	for _, id := range []string{"a", "b"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+id, nil))
		require.Equal(t, http.StatusNotFound, resp.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/reports/{id}", http.MethodGet, "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

func TestObserveDefaultsRoute(t *testing.T) {
	m := NewHTTP(prometheus.NewRegistry())
	m.Observe("", http.MethodPost, http.StatusOK, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(unmatchedRoute, http.MethodPost, "200")))

	var nilMetrics *HTTP
	nilMetrics.Observe("/x", http.MethodGet, http.StatusOK, 0)
}

func TestJobGaugesWithoutDatabase(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterJobGauges(reg, nil, nil)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Zero(t, queryCount(nil, nil, "SELECT 1"))
}
