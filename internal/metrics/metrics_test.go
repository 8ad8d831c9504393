package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Stored(SourceLive, 1)
	m.Stored(SourceCatchUp, 3)
	m.Stored(SourceCatchUp, 0)
	m.Dropped("unknown_type")
	m.Reconnect()
	m.Reconnect()
	m.SetConnected(true)
	m.Send("ok")
	m.EventDropped("message")

	if got := testutil.ToFloat64(m.EventsDropped.WithLabelValues("message")); got != 1 {
		t.Errorf("events dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MessagesStored.WithLabelValues(SourceCatchUp)); got != 3 {
		t.Errorf("catchup stored = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.MessagesStored.WithLabelValues(SourceLive)); got != 1 {
		t.Errorf("live stored = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Reconnects); got != 2 {
		t.Errorf("reconnects = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Connected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Stored(SourceLive, 1)
	m.Dropped("x")
	m.Reconnect()
	m.SetConnected(true)
	m.ObserveCatchUp(0)
	m.Send("ok")
	m.ProjectorRefresh()
	m.EventDropped("sync")
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ProjectorRefresh()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "chatd_projector_refreshes_total 1") {
		t.Errorf("metrics output missing projector counter:\n%s", body)
	}
}
