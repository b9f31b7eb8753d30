package middleware

import (
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AccessLog writes one line per request with its status and latency. A second WriteHeader
// from a handler is dropped and logged with a stack so the offending path can be found.
func AccessLog(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, log: log, method: r.Method, path: r.URL.Path}
			next.ServeHTTP(sw, r)
			code := sw.Status()
			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", code,
				"dur_ms", time.Since(start).Milliseconds(),
				"request_id", RequestIDFrom(r.Context()),
			}
			if code >= 500 {
				log.Warnw("http", kv...)
				return
			}
			log.Debugw("http", kv...)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	log    *zap.SugaredLogger
	wrote  int32
	method string
	path   string
	code   int
}

func (s *statusWriter) WriteHeader(code int) {
	if atomic.CompareAndSwapInt32(&s.wrote, 0, 1) {
		s.code = code
		s.ResponseWriter.WriteHeader(code)
		return
	}
	s.log.Errorw("double WriteHeader", "method", s.method, "path", s.path, "first", s.code, "second", code, "stack", string(debug.Stack()))
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if atomic.LoadInt32(&s.wrote) == 0 {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

// Status is the code sent to the client; 200 when the handler wrote nothing.
func (s *statusWriter) Status() int {
	if atomic.LoadInt32(&s.wrote) == 0 {
		return http.StatusOK
	}
	return s.code
}
