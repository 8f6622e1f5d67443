// Package metrics provides Prometheus metrics for the wikimediator.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logging.Logger("metrics")

// Namespace prefixes all metric names.
const Namespace = "wikimediator"

// Metrics holds all Prometheus metrics for the mediator. A nil *Metrics
// records nothing.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Path search metrics
	PathSearchesTotal  *prometheus.CounterVec
	PathSearchDuration prometheus.Histogram
}

// New creates metrics registered with reg. If reg is nil, the default
// registerer is used.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Total mediator requests by operation and status",
		}, []string{"op", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Mediator request duration by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_hits_total",
			Help:      "Total page lookups served from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_misses_total",
			Help:      "Total page lookups fetched from the content source",
		}),

		PathSearchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "path_searches_total",
			Help:      "Total shortest path searches by result",
		}, []string{"result"}),
		PathSearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "path_search_duration_seconds",
			Help:      "Shortest path search duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// RecordRequest records one mediator operation.
func (m *Metrics) RecordRequest(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(op, status).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCache records a page lookup as a hit or a miss.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordPathSearch records the result of a shortest path search.
func (m *Metrics) RecordPathSearch(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PathSearchesTotal.WithLabelValues(result).Inc()
	m.PathSearchDuration.Observe(duration.Seconds())
}

// Server runs an HTTP server exposing the /metrics and /health endpoints.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server on the given address that serves the
// metrics gathered by g. If g is nil, the default gatherer is used.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens on the server address and serves in a goroutine. It returns
// the address listened on.
func (s *Server) Start() (net.Addr, error) {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server stopped", "err", err)
		}
	}()
	log.Infow("Metrics server started", "addr", l.Addr().String())
	return l.Addr(), nil
}

// Close gracefully stops the metrics server.
func (s *Server) Close(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
