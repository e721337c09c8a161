package generate

import (
	"sync"
	"time"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
)

// RateLimiter enforces sliding-window request caps per minute and per
// day. Buckets are keyed by wall-clock minute/day and reset when the
// clock rolls over.
type RateLimiter struct {
	mu  sync.Mutex
	rpm int
	rpd int

	minuteKey   string
	minuteCount int
	dayKey      string
	dayCount    int

	now func() time.Time
}

// NewRateLimiter creates a limiter with the given per-minute and
// per-day caps.
func NewRateLimiter(rpm, rpd int) *RateLimiter {
	return &RateLimiter{
		rpm: rpm,
		rpd: rpd,
		now: time.Now,
	}
}

// Usage is a snapshot of the limiter counters.
type Usage struct {
	MinuteUsage     int `json:"minute_usage"`
	MinuteLimit     int `json:"minute_limit"`
	MinuteRemaining int `json:"minute_remaining"`
	DayUsage        int `json:"day_usage"`
	DayLimit        int `json:"day_limit"`
	DayRemaining    int `json:"day_remaining"`
}

// Allow reports whether a request may proceed. The minute cap is
// checked before the day cap, so a minute rejection never masks a day
// rejection and vice versa.
func (r *RateLimiter) Allow() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roll()

	if r.minuteCount >= r.rpm {
		metrics.RateLimitRejectedTotal.WithLabelValues(string(domain.ScopeMinute)).Inc()
		return domain.NewRateLimitError(domain.ScopeMinute, r.rpm)
	}
	if r.dayCount >= r.rpd {
		metrics.RateLimitRejectedTotal.WithLabelValues(string(domain.ScopeDay)).Inc()
		return domain.NewRateLimitError(domain.ScopeDay, r.rpd)
	}
	return nil
}

// Record counts one request against both windows.
func (r *RateLimiter) Record() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roll()
	r.minuteCount++
	r.dayCount++
}

// Usage returns the current counters.
func (r *RateLimiter) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roll()

	return Usage{
		MinuteUsage:     r.minuteCount,
		MinuteLimit:     r.rpm,
		MinuteRemaining: maxInt(0, r.rpm-r.minuteCount),
		DayUsage:        r.dayCount,
		DayLimit:        r.rpd,
		DayRemaining:    maxInt(0, r.rpd-r.dayCount),
	}
}

// roll resets counters when the minute or day bucket changes. Caller
// holds the lock.
func (r *RateLimiter) roll() {
	now := r.now()

	minuteKey := now.Format("200601021504")
	if minuteKey != r.minuteKey {
		r.minuteKey = minuteKey
		r.minuteCount = 0
	}

	dayKey := now.Format("20060102")
	if dayKey != r.dayKey {
		r.dayKey = dayKey
		r.dayCount = 0
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
