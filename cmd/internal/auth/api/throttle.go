package authapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxThrottleKeys bounds memory; past it, a full prune runs on every failure.
const maxThrottleKeys = 10_000

// loginThrottle is a per-client sliding window of failed logins.
// A nil *loginThrottle never blocks.
type loginThrottle struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
}

func newLoginThrottle(limit int, window time.Duration) *loginThrottle {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return &loginThrottle{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
	}
}

// blocked reports whether key has reached the failure limit and how long
// until the oldest failure leaves the window.
func (t *loginThrottle) blocked(key string, now time.Time) (bool, time.Duration) {
	if t == nil {
		return false, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ev := t.prune(key, now)
	if len(ev) < t.limit {
		return false, 0
	}
	return true, ev[0].Add(t.window).Sub(now)
}

func (t *loginThrottle) fail(key string, now time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.events) >= maxThrottleKeys {
		for k := range t.events {
			t.prune(k, now)
		}
	}
	t.events[key] = append(t.prune(key, now), now)
}

func (t *loginThrottle) prune(key string, now time.Time) []time.Time {
	ev := t.events[key]
	cut := now.Add(-t.window)
	i := 0
	for i < len(ev) && !ev[i].After(cut) {
		i++
	}
	ev = ev[i:]
	if len(ev) == 0 {
		delete(t.events, key)
		return nil
	}
	t.events[key] = ev
	return ev
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if secs := int64((retryAfter + time.Second - 1) / time.Second); secs > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
