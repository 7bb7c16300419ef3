// Package gateway funnels every GitHub API call through one serialized,
// rate-aware chokepoint.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"team-activity-pipeline/internal/apperrors"

	"github.com/google/go-github/v61/github"
)

// Operation performs one API call and returns the response it received, if any
type Operation func(ctx context.Context) (*github.Response, error)

// Gateway serializes calls sharing one credential's quota. A single-slot
// semaphore is used instead of a sync.Mutex so waiting callers can give up
// when their context ends.
type Gateway struct {
	sem      chan struct{}
	snapshot atomic.Pointer[Snapshot]
	now      func() time.Time
}

func New() *Gateway {
	return &Gateway{
		sem: make(chan struct{}, 1),
		now: time.Now,
	}
}

// Execute runs op once no other call is in flight. The rate-limit snapshot is
// replaced from whatever response op produced, including one attached to an
// error. 403/429 rate-limit failures come back as apperrors RATE_LIMITED.
func (g *Gateway) Execute(ctx context.Context, op Operation) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.sem }()

	resp, err := op(ctx)

	snap := g.record(resp, err)
	if err != nil {
		if isRateLimit(err, snap) {
			slog.Warn("GitHub rate limit hit", "retryAfter", snap.RetryAfter, "error", err)
			return apperrors.NewRateLimitedError("github rate limit exceeded", err)
		}
		return err
	}
	return nil
}

// Call is Execute for operations that also return a value
func Call[T any](ctx context.Context, g *Gateway, op func(ctx context.Context) (T, *github.Response, error)) (T, error) {
	var out T
	err := g.Execute(ctx, func(ctx context.Context) (*github.Response, error) {
		v, resp, err := op(ctx)
		out = v
		return resp, err
	})
	return out, err
}

// record stores a new snapshot when the call produced HTTP headers and
// returns the snapshot now in effect. Calls go-github refuses locally carry
// no headers, only the quota it remembered, which is used instead.
func (g *Gateway) record(resp *github.Response, err error) *Snapshot {
	var header http.Header
	if resp != nil && resp.Response != nil {
		header = resp.Header
	}
	if header == nil {
		header = errorHeader(err)
	}
	if header == nil {
		return g.snapshot.Load()
	}

	snap := snapshotFromHeaders(header, g.now())
	if snap.Remaining == nil && snap.Reset == nil {
		if rate, ok := knownRate(resp, err); ok {
			snap.applyRate(rate)
		}
	}
	g.snapshot.Store(snap)
	return snap
}

// knownRate returns the quota go-github attached to the response or error.
// A zero Rate means it was parsed from a response without rate headers.
func knownRate(resp *github.Response, err error) (github.Rate, bool) {
	var rate github.Rate
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		rate = rateErr.Rate
	} else if resp != nil {
		rate = resp.Rate
	}
	if rate.Limit == 0 && rate.Reset.Time.IsZero() {
		return rate, false
	}
	return rate, true
}

// errorHeader digs the response headers out of go-github's error types
func errorHeader(err error) http.Header {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return rateErr.Response.Header
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		return abuseErr.Response.Header
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.Header
	}
	return nil
}

func errorStatus(err error) int {
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode
	}
	return 0
}

// isRateLimit treats 429 as a rate limit outright. A 403 counts only when it
// also signals quota trouble, so permission errors are not retried forever.
func isRateLimit(err error, snap *Snapshot) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	switch errorStatus(err) {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return snap.exhausted() || (snap != nil && snap.RetryAfter > 0)
	}
	return false
}

// GetRateLimitInfo returns the last observed quota, or false before any
// response carried headers
func (g *Gateway) GetRateLimitInfo() (RateLimitInfo, bool) {
	snap := g.snapshot.Load()
	if snap == nil {
		return RateLimitInfo{}, false
	}
	return RateLimitInfo{Remaining: snap.Remaining, Limit: snap.Limit, Reset: snap.Reset}, true
}

// GetRetryAfter returns the last Retry-After hint, or 0
func (g *Gateway) GetRetryAfter() time.Duration {
	if snap := g.snapshot.Load(); snap != nil {
		return snap.RetryAfter
	}
	return 0
}

// BackoffDelay is how long a caller should wait before calling again: the
// Retry-After hint if present, otherwise the time until the quota resets when
// it is exhausted, otherwise zero.
func (g *Gateway) BackoffDelay() time.Duration {
	snap := g.snapshot.Load()
	if snap == nil {
		return 0
	}
	if snap.RetryAfter > 0 {
		return snap.RetryAfter
	}
	if snap.exhausted() && snap.Reset != nil {
		if d := snap.Reset.Sub(g.now()); d > 0 {
			return d
		}
	}
	return 0
}
