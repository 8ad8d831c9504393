// Package metrics holds the Prometheus collectors for the sync path.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message sources for MessagesStored.
const (
	SourceLive    = "live"
	SourceCatchUp = "catchup"
	SourceSent    = "sent"
)

// Metrics is a set of collectors on a private registry. All methods are safe
// on a nil receiver so components can run without metrics.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesStored  *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	Reconnects      prometheus.Counter
	Connected       prometheus.Gauge
	CatchUpDuration prometheus.Histogram
	SendsTotal      *prometheus.CounterVec
	ProjectorRuns   prometheus.Counter
	EventsDropped   *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "sync",
			Name:      "messages_stored_total",
			Help:      "Messages written to the local cache, by source.",
		}, []string{"source"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "live",
			Name:      "frames_dropped_total",
			Help:      "Push channel frames discarded, by reason.",
		}, []string{"reason"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "live",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled after a dropped or failed connection.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "live",
			Name:      "connected",
			Help:      "1 while the push channel is connected.",
		}),
		CatchUpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatd",
			Subsystem: "sync",
			Name:      "catchup_duration_seconds",
			Help:      "Duration of the login catch-up fetch.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		SendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "outbox",
			Name:      "sends_total",
			Help:      "Outbound send attempts, by status.",
		}, []string{"status"}),
		ProjectorRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "projector",
			Name:      "refreshes_total",
			Help:      "Conversation summary recomputations.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Events discarded for slow subscribers, by event namespace.",
		}, []string{"namespace"}),
	}
	m.Registry.MustRegister(
		m.MessagesStored,
		m.FramesDropped,
		m.Reconnects,
		m.Connected,
		m.CatchUpDuration,
		m.SendsTotal,
		m.ProjectorRuns,
		m.EventsDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Stored counts n messages written from source.
func (m *Metrics) Stored(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MessagesStored.WithLabelValues(source).Add(float64(n))
}

// Dropped counts a discarded push frame.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// Reconnect counts a scheduled reconnect.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// SetConnected records push channel liveness.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// ObserveCatchUp records a catch-up run duration.
func (m *Metrics) ObserveCatchUp(d time.Duration) {
	if m == nil {
		return
	}
	m.CatchUpDuration.Observe(d.Seconds())
}

// Send counts an outbound send by status ("ok", "failed", "rejected").
func (m *Metrics) Send(status string) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(status).Inc()
}

// ProjectorRefresh counts a summary recomputation.
func (m *Metrics) ProjectorRefresh() {
	if m == nil {
		return
	}
	m.ProjectorRuns.Inc()
}

// EventDropped counts a bus event lost to a full subscriber buffer.
func (m *Metrics) EventDropped(namespace string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(namespace).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics on addr.
type Server struct {
	srv *http.Server
}

// NewServer builds the metrics HTTP server. It does not listen until Start.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
