package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/vessel.report/internal/monitoring"
)

const (
	colorCyan      = "\033[36m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
	colorReset     = "\033[0m"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working behind the middleware.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusCodeColor(code int) string {
	s := strconv.Itoa(code)
	switch {
	case code >= 200 && code < 300:
		return colorBoldGreen + s + colorReset
	case code >= 300 && code < 400:
		return colorYellow + s + colorReset
	case code >= 400:
		return colorBoldRed + s + colorReset
	default:
		return s
	}
}

// LoggingMiddleware logs method, request URI, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
