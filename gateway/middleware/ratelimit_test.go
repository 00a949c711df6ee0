package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func limitedHandler(limits map[string]RateLimit, group string) http.Handler {
	rl := NewRateLimiter(limits, nil, nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return rl.Middleware(group)(next)
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	handler := limitedHandler(map[string]RateLimit{
		"writes": {RequestsPerMinute: 60, Burst: 3},
	}, "writes")
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterThrottlesBeyondBurst(t *testing.T) {
	handler := limitedHandler(map[string]RateLimit{
		"writes": {RequestsPerMinute: 60, Burst: 2},
	}, "writes")
	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	handler := limitedHandler(map[string]RateLimit{
		"writes": {RequestsPerMinute: 60, Burst: 1},
	}, "writes")

	first := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterUnknownGroupPassesThrough(t *testing.T) {
	handler := limitedHandler(map[string]RateLimit{}, "writes")
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
	}
}

func TestClientIDHonorsForwardedHeadersFromTrustedProxy(t *testing.T) {
	rl := NewRateLimiter(nil, []string{"10.0.0.1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := rl.clientID(req); got != "198.51.100.7" {
		t.Fatalf("expected forwarded address, got %q", got)
	}

	req.Header.Set("X-Real-IP", "203.0.113.9")
	if got := rl.clientID(req); got != "203.0.113.9" {
		t.Fatalf("expected real-ip address, got %q", got)
	}
}

func TestClientIDIgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.Header.Set("X-Real-IP", "203.0.113.9")
	if got := rl.clientID(req); got != "10.0.0.2" {
		t.Fatalf("expected peer address, got %q", got)
	}
}
