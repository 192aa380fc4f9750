// Package metrics holds the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

const namespace = "vramcalc"

var (
	Registry = prometheus.NewRegistry()

	Estimates = newCounterVec("estimator", "estimates_total", "Number of estimates computed.", "over_capacity")
	Lookups   = newCounterVec("registry", "lookups_total", "Number of model metadata lookups by outcome.", "status")

	LookupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "lookup_duration_seconds",
		Help:      "Time spent fetching model metadata.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"status"})
)

func init() {
	Registry.MustRegister(
		Estimates,
		Lookups,
		LookupDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func ObserveEstimate(r vram.Result) {
	Estimates.WithLabelValues(strconv.FormatBool(r.IsOverCapacity)).Inc()
}

func ObserveLookup(status string, d time.Duration) {
	Lookups.WithLabelValues(status).Inc()
	LookupDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Handler serves the collectors in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
