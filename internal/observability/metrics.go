package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Roles label which side of the connection recorded a sample.
const (
	RoleClient = "client"
	RoleBroker = "broker"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompctl",
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport.",
		},
		[]string{"role", "command"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompctl",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the transport.",
		},
		[]string{"role", "command"},
	)
	anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompctl",
			Name:      "anomalies_total",
			Help:      "Protocol anomalies and server errors reported.",
		},
		[]string{"role", "kind"},
	)
	sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stompctl",
			Name:      "sessions_active",
			Help:      "Sessions currently in the connected state.",
		},
		[]string{"role"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stompctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent, framesReceived, anomalies, sessionsActive, httpRequests, httpDuration)
	})
}

func RecordFrameSent(role, command string) {
	RegisterMetrics()
	framesSent.WithLabelValues(role, command).Inc()
}

func RecordFrameReceived(role, command string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(role, command).Inc()
}

func RecordAnomaly(role, kind string) {
	RegisterMetrics()
	anomalies.WithLabelValues(role, kind).Inc()
}

func SessionStarted(role string) {
	RegisterMetrics()
	sessionsActive.WithLabelValues(role).Inc()
}

func SessionEnded(role string) {
	RegisterMetrics()
	sessionsActive.WithLabelValues(role).Dec()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
