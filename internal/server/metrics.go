package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics lives on its own registry so several servers can coexist in tests.
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trifle_kv_requests_total",
			Help: "KV requests by operation and status code",
		}, []string{"op", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trifle_kv_request_duration_seconds",
			Help:    "KV request latency by operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trifle_kv_bytes_total",
			Help: "Value bytes transferred by direction",
		}, []string{"direction"}),
	}
}

func (m *metrics) observe(op string, status int, elapsed time.Duration) {
	if m == nil || op == "" {
		return
	}
	m.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// kvOp names the operation behind a request, or "" for non-KV routes.
func kvOp(method, path string) string {
	switch {
	case strings.HasPrefix(path, "/kvlist/"):
		return "list"
	case strings.HasPrefix(path, "/kv/"):
		switch method {
		case "GET":
			return "get"
		case "HEAD":
			return "head"
		case "PUT":
			return "put"
		case "DELETE":
			return "delete"
		default:
			return "other"
		}
	default:
		return ""
	}
}
