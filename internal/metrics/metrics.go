package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache captures media acquisition outcomes.
type Cache interface {
	IncAcquire(result string)
	IncDownloadAttempt(outcome string)
	IncEvicted()
	ObserveDownload(durationSeconds float64)
}

// HTTP captures request metrics for the API server.
type HTTP interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Cache and HTTP without emitting anything.
type Noop struct{}

func (Noop) IncAcquire(string)                               {}
func (Noop) IncDownloadAttempt(string)                       {}
func (Noop) IncEvicted()                                     {}
func (Noop) ObserveDownload(float64)                         {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Cache and HTTP backed by Prometheus collectors.
type Prom struct {
	acquisitions     *prometheus.CounterVec
	downloadAttempts *prometheus.CounterVec
	evicted          prometheus.Counter
	downloadSeconds  prometheus.Histogram
	requestSeconds   *prometheus.HistogramVec
	gatherer         prometheus.Gatherer
}

// NewProm registers collectors on reg. A nil reg uses a fresh registry so
// tests can build several instances.
func NewProm(namespace string, reg *prometheus.Registry) *Prom {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	p := &Prom{
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Media acquisitions by result (hit, miss, error)",
		}, []string{"result"}),
		downloadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_attempts_total",
			Help:      "Download attempts by outcome",
		}, []string{"outcome"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_evicted_total",
			Help:      "Cached artifacts removed by the retention sweep",
		}),
		downloadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Wall time of successful downloads including retries",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(p.acquisitions, p.downloadAttempts, p.evicted, p.downloadSeconds, p.requestSeconds)
	return p
}

func (p *Prom) IncAcquire(result string) {
	p.acquisitions.WithLabelValues(result).Inc()
}

func (p *Prom) IncDownloadAttempt(outcome string) {
	p.downloadAttempts.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncEvicted() {
	p.evicted.Inc()
}

func (p *Prom) ObserveDownload(durationSeconds float64) {
	p.downloadSeconds.Observe(durationSeconds)
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requestSeconds.WithLabelValues(method, route, status).Observe(durationSeconds)
}

// Handler exposes the registry in the Prometheus text format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
