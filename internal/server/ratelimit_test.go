package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"resumeforge/internal/errors"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "203.0.113.7:51234", want: "203.0.113.7"},
		{name: "remote addr without port", remoteAddr: "203.0.113.7", want: "203.0.113.7"},
		{
			name:       "first forwarded address",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.5"},
			want:       "198.51.100.2",
		},
		{
			name:       "skips invalid forwarded entries",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "unknown, , 2001:db8::1"},
			want:       "2001:db8::1",
		},
		{
			name:       "real ip when forwarded list has no address",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": " 198.51.100.9 "},
			want:       "198.51.100.9",
		},
		{
			name:       "invalid real ip falls back to remote addr",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "not-an-ip"},
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		byAPIKey bool
		byIP     bool
		want     string
	}{
		{name: "api key preferred", apiKey: "secret", byAPIKey: true, byIP: true, want: "api:secret"},
		{name: "ip when request has no key", byAPIKey: true, byIP: true, want: "ip:198.51.100.2"},
		{name: "ip only", apiKey: "secret", byIP: true, want: "ip:198.51.100.2"},
		{name: "api key mode without key is exempt", byAPIKey: true, want: ""},
		{name: "nothing enabled", apiKey: "secret", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
			r.RemoteAddr = "10.0.0.1:80"
			r.Header.Set("X-Forwarded-For", "198.51.100.2")
			if tt.apiKey != "" {
				r.Header.Set("X-API-Key", tt.apiKey)
			}
			if got := rateLimitKey(r, tt.byAPIKey, tt.byIP); got != tt.want {
				t.Errorf("rateLimitKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggableKey(t *testing.T) {
	if got := loggableKey("ip:198.51.100.2"); got != "ip:198.51.100.2" {
		t.Errorf("loggableKey(ip) = %q", got)
	}
	if got := loggableKey("api:abcdefghijklmnop"); got == "api:abcdefghijklmnop" {
		t.Errorf("loggableKey(api) left the key unmasked")
	}
}

func TestClientLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewClientLimiter(60, 2, errors.Discard())
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of two should be allowed")
	}
	if l.Allow("a") {
		t.Error("third immediate request should be limited")
	}
	if !l.Allow("b") {
		t.Error("clients must not share buckets")
	}

	if got := l.Stats()["active_limiters"]; got != 2 {
		t.Errorf("active_limiters = %v, want 2", got)
	}

	now = now.Add(limiterIdleTTL / 2)
	l.Allow("b")
	now = now.Add(limiterIdleTTL/2 + time.Second)
	if n := l.Evict(); n != 1 {
		t.Errorf("Evict() = %d, want 1", n)
	}
	if got := l.Stats()["active_limiters"]; got != 1 {
		t.Errorf("active_limiters after evict = %v, want 1", got)
	}
}
