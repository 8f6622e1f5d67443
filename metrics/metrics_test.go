package metrics_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/votqanh/go-wikimediator/metrics"
)

func TestRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.RecordRequest("getPage", "success", 10*time.Millisecond)
	m.RecordRequest("getPage", "success", 20*time.Millisecond)
	m.RecordRequest("getPage", "failed", time.Millisecond)
	m.RecordCache(true)
	m.RecordCache(false)
	m.RecordCache(false)
	m.RecordPathSearch("found", time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("getPage", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("getPage", "failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	require.Equal(t, 2.0, testutil.ToFloat64(m.CacheMisses))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PathSearchesTotal.WithLabelValues("found")))
	require.Equal(t, 2, testutil.CollectAndCount(m.RequestsTotal))
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.RecordRequest("search", "success", time.Millisecond)
		m.RecordCache(true)
		m.RecordPathSearch("timeout", time.Second)
	})
}

func TestServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordCache(true)

	s := metrics.NewServer("127.0.0.1:0", reg)
	addr, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", string(body))

	resp, err = http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "wikimediator_cache_hits_total 1"))
}
