package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dropin/internal/adapters/http/perf"
)

// DefaultSlowRequest is the threshold used when TimingOptions leaves it unset.
const DefaultSlowRequest = 200 * time.Millisecond

// RequestObserver receives one call per completed request.
type RequestObserver interface {
	Request(method, route string, status int, d time.Duration)
}

// TimingOptions configures Timing. Every field is optional.
type TimingOptions struct {
	Collector     *perf.Collector
	SlowThreshold time.Duration
	Observer      RequestObserver
}

var requestIDCounter uint64

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the underlying ResponseWriter.
func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

var statusWriterPool = sync.Pool{
	New: func() any {
		return &statusWriter{}
	},
}

// Timing returns middleware that logs request duration at DEBUG, or WARN
// above the slow threshold, and records it to the collector and observer.
// /metrics and /healthz are excluded so scrapers do not skew the numbers.
func Timing(opts TimingOptions) func(http.Handler) http.Handler {
	threshold := opts.SlowThreshold
	if threshold <= 0 {
		threshold = DefaultSlowRequest
	}
	thresholdMs := float64(threshold.Microseconds()) / 1000.0

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/metrics" || path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqID := atomic.AddUint64(&requestIDCounter, 1)

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			defer func() {
				elapsed := time.Since(start)
				durationMs := float64(elapsed.Microseconds()) / 1000.0
				route := routeOf(r)

				level := slog.LevelDebug
				msg := "request"
				if durationMs >= thresholdMs {
					level = slog.LevelWarn
					msg = "slow_request"
				}
				slog.Log(r.Context(), level, msg,
					"request_id", reqID,
					"method", r.Method,
					"path", path,
					"status", sw.status,
					"duration_ms", durationMs,
				)

				if opts.Collector != nil {
					label := route
					if label == "" {
						label = path
					}
					opts.Collector.Record(perf.Entry{
						Kind:       perf.KindRequest,
						Path:       r.Method + " " + label,
						StatusCode: sw.status,
						Failed:     sw.status >= 500,
						DurationMs: durationMs,
						Timestamp:  start,
					})
				}
				if opts.Observer != nil {
					if route == "" {
						route = "unmatched"
					}
					opts.Observer.Request(r.Method, route, sw.status, elapsed)
				}

				sw.ResponseWriter = nil
				statusWriterPool.Put(sw)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

// routeOf returns the path part of the ServeMux pattern that matched r,
// or "" when no pattern matched.
func routeOf(r *http.Request) string {
	p := r.Pattern
	if i := strings.IndexByte(p, ' '); i >= 0 {
		p = p[i+1:]
	}
	return p
}
