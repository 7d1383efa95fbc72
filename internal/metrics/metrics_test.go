package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveQuery(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveQuery("building", nil, 10*time.Millisecond)
	m.ObserveQuery("building", nil, 20*time.Millisecond)
	m.ObserveQuery("building", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueryTotal.WithLabelValues("building", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryTotal.WithLabelValues("building", OutcomeFailed)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryDuration))
}

func TestNew_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) }, "duplicate registration")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RowsTotal.WithLabelValues("building", "part").Add(3)
	m.CacheHits.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `featsql_sql_rows_total{table="part",type="building"} 3`)
	assert.Contains(t, string(body), "featsql_cache_hits_total 1")
}
