package httpapi

import (
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"
)

// statusWriter captures the response status and size. It forwards Flush so
// the event stream keeps working behind the middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type sessionLookupFunc func(*http.Request) (username, sessionID string)

// withRequestLogging logs one line per completed request. Long-lived event
// streams are logged when the client disconnects, with their total duration,
// so a quiet stream is distinguishable from a dropped one.
func withRequestLogging(next http.Handler, lookup sessionLookupFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var username, sessionID string
		if lookup != nil {
			username, sessionID = lookup(r)
		}
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path = path + "?" + r.URL.RawQuery
		}
		logger := pslog.Ctx(r.Context()).With("remote", clientIP(r))
		if username != "" {
			logger = logger.With("user", username)
		}
		if sessionID != "" {
			logger = logger.With("http_session", sessionID)
		}
		if strings.HasPrefix(sw.Header().Get("Content-Type"), "text/event-stream") {
			logger = logger.With("stream", true)
		}
		logger.Info("http request",
			"method", r.Method,
			"path", path,
			"status", status,
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		logger.Debug("http request details", "ua", r.UserAgent())
	})
}

// clientIP prefers the first X-Forwarded-For hop so logs stay useful behind
// a reverse proxy fronting the deck.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
