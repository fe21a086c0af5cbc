package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProm_Counters(t *testing.T) {
	p := NewProm("audiokit", nil)
	p.IncAcquire("hit")
	p.IncAcquire("hit")
	p.IncAcquire("miss")
	p.IncDownloadAttempt("failure")
	p.IncEvicted()

	if got := testutil.ToFloat64(p.acquisitions.WithLabelValues("hit")); got != 2 {
		t.Errorf("hit acquisitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.acquisitions.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss acquisitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.evicted); got != 1 {
		t.Errorf("evicted = %v, want 1", got)
	}
}

func TestProm_Handler(t *testing.T) {
	p := NewProm("audiokit", nil)
	p.ObserveRequest("GET", "/health", "200", 0.01)
	p.ObserveDownload(3)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"audiokit_http_request_duration_seconds", "audiokit_download_duration_seconds"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestNoopSatisfiesInterfaces(t *testing.T) {
	var _ Cache = Noop{}
	var _ HTTP = Noop{}
	var _ Cache = (*Prom)(nil)
	var _ HTTP = (*Prom)(nil)
}
