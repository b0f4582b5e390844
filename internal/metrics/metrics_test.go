package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(IngestTransitionsTotal.WithLabelValues("completed"))
	IngestTransitionsTotal.WithLabelValues("completed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(IngestTransitionsTotal.WithLabelValues("completed")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	IngestFailuresTotal.WithLabelValues("embedding").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "recall_ingest_failures_total")
}
