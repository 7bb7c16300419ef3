package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v61/github"
)

const (
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	headerRetryAfter    = "Retry-After"
)

// Snapshot is the quota state reported by the most recent response. Nil
// fields mean the response did not carry the header.
type Snapshot struct {
	Remaining  *int
	Limit      *int
	Reset      *time.Time
	RetryAfter time.Duration
	ObservedAt time.Time
}

// RateLimitInfo is the read-only view handed to callers
type RateLimitInfo struct {
	Remaining *int       `json:"remaining"`
	Limit     *int       `json:"limit"`
	Reset     *time.Time `json:"reset"`
}

func snapshotFromHeaders(h http.Header, now time.Time) *Snapshot {
	s := &Snapshot{ObservedAt: now}
	if v, ok := headerInt(h, headerRateRemaining); ok {
		s.Remaining = &v
	}
	if v, ok := headerInt(h, headerRateLimit); ok {
		s.Limit = &v
	}
	if v, ok := headerInt(h, headerRateReset); ok {
		reset := time.Unix(int64(v), 0)
		s.Reset = &reset
	}
	if v, ok := headerInt(h, headerRetryAfter); ok && v > 0 {
		s.RetryAfter = time.Duration(v) * time.Second
	}
	return s
}

func headerInt(h http.Header, key string) (int, bool) {
	raw := h.Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// exhausted reports whether the snapshot says no quota is left
func (s *Snapshot) exhausted() bool {
	return s != nil && s.Remaining != nil && *s.Remaining == 0
}

func (s *Snapshot) applyRate(rate github.Rate) {
	remaining, limit := rate.Remaining, rate.Limit
	s.Remaining = &remaining
	s.Limit = &limit
	if !rate.Reset.Time.IsZero() {
		reset := rate.Reset.Time
		s.Reset = &reset
	}
}
