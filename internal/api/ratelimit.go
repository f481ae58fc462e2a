package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// failureLimiter throttles clients that keep presenting invalid link
// states: once an IP has max failures inside window, its callbacks are
// refused until the oldest failure ages out.
type failureLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	window   time.Duration
	max      int
	now      func() time.Time
}

func newFailureLimiter(max int, window time.Duration) *failureLimiter {
	return &failureLimiter{
		failures: make(map[string][]time.Time),
		window:   window,
		max:      max,
		now:      time.Now,
	}
}

// allow reports whether ip may attempt another link callback.
func (l *failureLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(ip)) < l.max
}

// fail counts a rejected state from ip.
func (l *failureLimiter) fail(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[ip] = append(l.recent(ip), l.now())
}

// clear forgets ip's failures after it presents a valid state.
func (l *failureLimiter) clear(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, ip)
}

// recent drops failures older than the window. Callers hold l.mu.
func (l *failureLimiter) recent(ip string) []time.Time {
	cutoff := l.now().Add(-l.window)
	kept := l.failures[ip][:0]
	for _, t := range l.failures[ip] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, ip)
		return nil
	}
	l.failures[ip] = kept
	return kept
}

// clientIP extracts the real client IP. Proxy headers (CF-Connecting-IP,
// then X-Forwarded-For) are only honoured when the direct peer is a
// loopback or private address.
func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !(peer.IsLoopback() || peer.IsPrivate()) {
		return host
	}

	if ip, ok := parseIP(r.Header.Get("CF-Connecting-IP")); ok {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First valid entry is the original client
		for _, part := range strings.Split(xff, ",") {
			if ip, ok := parseIP(part); ok {
				return ip
			}
		}
	}
	return host
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.String(), true
}
