package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interview_feedback"

// Collector owns a private registry so separate instances never collide.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	framesExtracted  prometheus.Histogram
	tokensTotal      *prometheus.CounterVec
	costTotal        *prometheus.CounterVec
	cleanupFailures  prometheus.Counter
	inFlight         prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		analysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyses by provider and outcome",
		}, []string{"provider", "outcome"}),

		analysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"provider"}),

		framesExtracted: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frames_extracted",
			Help:      "Frames sampled per frame-based analysis",
			Buckets:   []float64{1, 5, 10, 15, 20, 25, 30},
		}),

		tokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by provider and direction",
		}, []string{"provider", "direction"}),

		costTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Provider cost in USD",
		}, []string{"provider"}),

		cleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Scratch artifacts that could not be removed",
		}),

		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analyses_in_flight",
			Help:      "Analyses currently running",
		}),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// AnalysisStarted marks one analysis in flight; call the returned func when it ends.
func (c *Collector) AnalysisStarted() func() {
	c.inFlight.Inc()
	return c.inFlight.Dec
}

func (c *Collector) RecordAnalysis(provider, outcome string, d time.Duration) {
	c.analysesTotal.WithLabelValues(provider, outcome).Inc()
	c.analysisDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (c *Collector) RecordFrames(n int) {
	c.framesExtracted.Observe(float64(n))
}

func (c *Collector) RecordUsage(provider string, input, output int, cost float64) {
	c.tokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	c.tokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	c.costTotal.WithLabelValues(provider).Add(cost)
}

func (c *Collector) RecordCleanupFailure() {
	c.cleanupFailures.Inc()
}
