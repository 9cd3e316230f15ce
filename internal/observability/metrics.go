package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qpnet",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qpnet",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qpnet",
			Subsystem: "stream",
			Name:      "packages_received_total",
			Help:      "Packages read from streams by message type.",
		},
		[]string{"type"},
	)
	packagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qpnet",
			Subsystem: "stream",
			Name:      "packages_sent_total",
			Help:      "Packages whose write completed by message type.",
		},
		[]string{"type"},
	)
	packageBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qpnet",
			Subsystem: "stream",
			Name:      "package_bytes",
			Help:      "Package wire size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(8, 4, 10),
		},
		[]string{"direction"},
	)
	writeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qpnet",
			Subsystem: "stream",
			Name:      "write_errors_total",
			Help:      "Package writes that completed with an error.",
		},
	)
	integrityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qpnet",
			Subsystem: "stream",
			Name:      "integrity_failures_total",
			Help:      "Streams closed because a header failed the integrity check.",
		},
	)
	teeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qpnet",
			Subsystem: "tee",
			Name:      "writes_total",
			Help:      "Packages offered to the tee pipe by result.",
		},
		[]string{"result"},
	)
	insertedPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qpnet",
			Subsystem: "insert",
			Name:      "points_total",
			Help:      "Points accepted by insert requests.",
		},
		[]string{"db"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			packagesReceived,
			packagesSent,
			packageBytes,
			writeErrors,
			integrityFailures,
			teeWrites,
			insertedPoints,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPackageReceived(msgType string, size int) {
	RegisterMetrics()
	packagesReceived.WithLabelValues(msgType).Inc()
	packageBytes.WithLabelValues("in").Observe(float64(size))
}

func RecordPackageSent(msgType string, size int) {
	RegisterMetrics()
	packagesSent.WithLabelValues(msgType).Inc()
	packageBytes.WithLabelValues("out").Observe(float64(size))
}

func RecordWriteError() {
	RegisterMetrics()
	writeErrors.Inc()
}

func RecordIntegrityFailure() {
	RegisterMetrics()
	integrityFailures.Inc()
}

func RecordTeeWrite(result string) {
	RegisterMetrics()
	teeWrites.WithLabelValues(result).Inc()
}

func RecordInsertedPoints(db string, n int) {
	RegisterMetrics()
	insertedPoints.WithLabelValues(db).Add(float64(n))
}
