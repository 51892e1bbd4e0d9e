// Package metrics holds the Prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the counter set shared by the ingest loops, the tailer and the
// alert store. Counters are registered against an injected registerer so
// tests can use a private registry.
type Metrics struct {
	RecordsTotal    prometheus.Counter
	AlertsAccepted  prometheus.Counter
	AlertsDuplicate prometheus.Counter
	AlertsEvicted   prometheus.Counter
	ParseErrors     prometheus.Counter
	FetchErrors     prometheus.Counter
	ForwardErrors   prometheus.Counter
}

// New creates the counter set registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "novawatch_records_total",
			Help: "Total number of telemetry/log records processed",
		}),
		AlertsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "novawatch_alerts_accepted_total",
			Help: "Total number of alerts accepted by the dedup store",
		}),
		AlertsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "novawatch_alerts_duplicate_total",
			Help: "Total number of candidate alerts rejected as duplicates",
		}),
		AlertsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "novawatch_alerts_evicted_total",
			Help: "Total number of alerts evicted by the retention cap",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "novawatch_parse_errors_total",
			Help: "Total number of malformed input records skipped",
		}),
		FetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "novawatch_fetch_errors_total",
			Help: "Total number of external fetch failures",
		}),
		ForwardErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "novawatch_forward_errors_total",
			Help: "Total number of alert forwarding failures",
		}),
	}
}

// Server returns an HTTP server exposing /metrics for the given registry.
func Server(addr string, reg *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
