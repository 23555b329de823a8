// Package metrics defines the Prometheus collectors shared by the services
// and the HTTP layer.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Operations counts service operations.
	// Labels: op (question_add, session_init, ...), outcome (ok, error, denied)
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auditions",
		Subsystem: "service",
		Name:      "operations_total",
		Help:      "Service operations by outcome",
	}, []string{"op", "outcome"})

	// FanOutRecords counts response records patched by question fan-out.
	// Labels: action (add, edit, delete)
	FanOutRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auditions",
		Subsystem: "fanout",
		Name:      "records_total",
		Help:      "Response records patched by question fan-out",
	}, []string{"action"})

	// FanOutFailures counts fan-outs that stopped before patching every record.
	// Labels: action
	FanOutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auditions",
		Subsystem: "fanout",
		Name:      "failures_total",
		Help:      "Question fan-outs that left records unpatched",
	}, []string{"action"})

	// ReconciledEntries counts entries added by session reconciliation.
	ReconciledEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auditions",
		Subsystem: "session",
		Name:      "reconciled_entries_total",
		Help:      "Question entries added to records at session start",
	})

	// HTTPDuration measures request latency.
	// Labels: method, route, code
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auditions",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "code"})

	// WatchListeners tracks open question-feed websockets.
	WatchListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "auditions",
		Subsystem: "watch",
		Name:      "listeners",
		Help:      "Open question feed connections",
	})
)

// Observe records one service operation outcome.
func Observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	Operations.WithLabelValues(op, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Instrument wraps a handler registered under route.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		HTTPDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Observe(time.Since(start).Seconds())
	})
}
