package adapthttp

import (
	"crypto/subtle"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trustcore/internal/app"
	"trustcore/internal/domain"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware assigns a request id and logs one line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		log.Printf("http: %s %s %d %s id=%s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond), id)
	})
}

// rateLimit applies a policy to every request, keyed by keyFn.
func (s *Server) rateLimit(policy string, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.allow(w, r, policy, keyFn(r)) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow checks key against policy and writes the rate-limit headers. When
// the request is over the limit it writes the 429 response and returns false.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, policy, key string) bool {
	res, err := s.limits.Check(r.Context(), policy, key)
	if err != nil {
		log.Printf("rate limit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return false
	}

	setRateLimitHeaders(w, res)
	if res.Success {
		return true
	}

	retry := int(math.Ceil(time.Until(res.Reset).Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	log.Printf("rate limit: %s exceeded for %s", policy, redactKey(key))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":     "too many requests",
		"limit":     res.Limit,
		"remaining": res.Remaining,
		"reset":     res.Reset.UnixMilli(),
	})
	return false
}

func setRateLimitHeaders(w http.ResponseWriter, res domain.RateLimitResult) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
}

// redactKey keeps email keys out of the logs.
func redactKey(key string) string {
	if rest, ok := strings.CutPrefix(key, "email:"); ok {
		return "email:" + app.MaskEmail(rest)
	}
	return key
}

// requireAdmin admits requests carrying the configured bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken == "" {
			http.NotFound(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
