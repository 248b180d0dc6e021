package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	// ---- Protocol ----
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "messages_sent_total",
			Help:      "Protocol messages handed to the transport.",
		},
		[]string{"type"},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "messages_received_total",
			Help:      "Protocol messages decoded and dispatched.",
		},
		[]string{"type"},
	)

	DroppedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped before dispatch or send, by reason.",
		},
		[]string{"reason"},
	)

	Merges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "merges_total",
			Help:      "Membership merges by outcome.",
		},
		[]string{"result"},
	)

	GossipRounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "gossip_rounds_total",
			Help:      "Completed gossip rounds.",
		},
	)

	Suspicions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "suspicions_total",
			Help:      "Entries marked dead by the local failure detector.",
		},
	)

	Evictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "evictions_total",
			Help:      "Entries removed from the local table.",
		},
	)

	Members = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "membership",
			Name:      "members",
			Help:      "Entries in the membership table, including self.",
		},
		[]string{"node"},
	)

	// ---- Admin HTTP ----
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "http_requests_total",
			Help:      "Total number of admin HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "membership",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of admin HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		},
		[]string{"op"},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "membership",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "membership",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesSent, MessagesReceived, DroppedMessages, Merges,
		GossipRounds, Suspicions, Evictions, Members,
		RequestsTotal, RequestDuration, buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
