package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIP_DoesNotTrustForwardedHeadersFromDirectClient(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.10:41234"
	r.Header.Set("CF-Connecting-IP", "198.51.100.20")
	r.Header.Set("X-Forwarded-For", "198.51.100.30")

	if got := clientIP(r); got != "203.0.113.10" {
		t.Fatalf("expected remote addr IP, got %q", got)
	}
}

func TestClientIP_UsesCFConnectingIPWhenProxyTrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "127.0.0.1:8080"
	r.Header.Set("CF-Connecting-IP", "198.51.100.42")

	if got := clientIP(r); got != "198.51.100.42" {
		t.Fatalf("expected CF-Connecting-IP, got %q", got)
	}
}

func TestClientIP_UsesFirstValidXFFWhenProxyTrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.2:8080"
	r.Header.Set("X-Forwarded-For", "garbage, 198.51.100.77, 198.51.100.78")

	if got := clientIP(r); got != "198.51.100.77" {
		t.Fatalf("expected first valid X-Forwarded-For IP, got %q", got)
	}
}

func TestClientIP_ParsesIPv6RemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "[2001:db8::1]:443"

	if got := clientIP(r); got != "2001:db8::1" {
		t.Fatalf("expected IPv6 remote IP, got %q", got)
	}
}

func TestFailureLimiter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := newFailureLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.allow("198.51.100.1") {
		t.Fatal("expected first attempt to be allowed")
	}
	l.fail("198.51.100.1")
	l.fail("198.51.100.1")
	if l.allow("198.51.100.1") {
		t.Fatal("expected limit to be reached")
	}
	if !l.allow("198.51.100.2") {
		t.Fatal("expected other IPs to be unaffected")
	}

	now = now.Add(time.Minute + time.Second)
	if !l.allow("198.51.100.1") {
		t.Fatal("expected failures to age out of the window")
	}
	if len(l.failures) != 0 {
		t.Fatalf("expected expired entries to be dropped, have %d", len(l.failures))
	}

	l.fail("198.51.100.1")
	l.fail("198.51.100.1")
	l.clear("198.51.100.1")
	if !l.allow("198.51.100.1") {
		t.Fatal("expected clear to forget failures")
	}
}
