package adapthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"journal/internal/domain"
)

var (
	errInternal        = errors.New("internal server error")
	errTooManyAttempts = errors.New("too many attempts")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func parseJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

// setQuotaHeaders publishes the quota state of d. Rejections also get a
// Retry-After in whole seconds.
func setQuotaHeaders(w http.ResponseWriter, d domain.QuotaDecision, now time.Time) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", d.WindowEnd.UTC().Format(time.RFC3339))
	if !d.Admitted {
		secs := int64(math.Max(1, d.RetryAfter(now).Seconds()))
		h.Set("Retry-After", strconv.FormatInt(secs, 10))
	}
}

func withNoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeThrottled writes a 429 whose body repeats the quota metadata.
func writeThrottled(w http.ResponseWriter, err error, d domain.QuotaDecision) {
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":     err.Error(),
		"remaining": d.Remaining,
		"resetTime": d.WindowEnd.UTC().Format(time.RFC3339),
	})
}
