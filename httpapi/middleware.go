package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the logging wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging logs every request with its status and duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// withNoCache marks every response as uncacheable; conversations change with
// every round and stale UI state is worse than the extra fetch.
func withNoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("X-Response-Time", fmt.Sprintf("%d", time.Now().UnixMilli()))
		next.ServeHTTP(w, r)
	})
}

// rateLimiter enforces a fixed-window per-client request cap.
type rateLimiter struct {
	mu         sync.Mutex
	perMinute  int
	windows    map[string]*window
	lastSweep  time.Time
	sweepEvery time.Duration
}

type window struct {
	count int
	reset time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute:  perMinute,
		windows:    make(map[string]*window),
		lastSweep:  time.Now(),
		sweepEvery: 5 * time.Minute,
	}
}

// allow reports whether the client may proceed.
func (l *rateLimiter) allow(client string) bool {
	if l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > l.sweepEvery {
		for key, w := range l.windows {
			if now.After(w.reset) {
				delete(l.windows, key)
			}
		}
		l.lastSweep = now
	}

	w, ok := l.windows[client]
	if !ok || now.After(w.reset) {
		l.windows[client] = &window{count: 1, reset: now.Add(time.Minute)}
		return true
	}
	if w.count >= l.perMinute {
		return false
	}
	w.count++
	return true
}

// withRateLimit rejects clients that exceed the configured request rate.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r, s.cfg.Server.TrustProxy)
		if !s.limiter.allow(client) {
			s.logger.Warn("rate limit exceeded", "client", client, "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP identifies the rate limit bucket for a request. X-Forwarded-For
// is attacker controlled on a directly exposed server, so it is only honored
// when the deployment declares a trusted proxy, and then only its first hop.
func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
