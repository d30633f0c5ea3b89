package mw

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/MrSnakeDoc/appendix/internal/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, method, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORS(t *testing.T) {
	h := CORS()(okHandler)

	rec := serve(h, http.MethodOptions, "/api/fetch-factors", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))

	rec = serve(h, http.MethodPost, "/api/fetch-factors", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMatchHost(t *testing.T) {
	tests := []struct {
		host, pattern string
		want          bool
	}{
		{"maps.example.com", "maps.example.com", true},
		{"Maps.Example.com:443", "maps.example.com", true},
		{"a.example.com", "*.example.com", true},
		{"example.com", "*.example.com", false},
		{"evil-example.com", "*.example.com", false},
		{"other.com", "maps.example.com", false},
		{"[::1]:3002", "[::1]", true},
	}

	for _, tt := range tests {
		if got := matchHost(tt.host, tt.pattern); got != tt.want {
			t.Errorf("matchHost(%q, %q) = %v, want %v", tt.host, tt.pattern, got, tt.want)
		}
	}
}

func TestEnforceHost(t *testing.T) {
	h := EnforceHost([]string{"maps.example.com"}, logger.NewNop())(okHandler)

	rec := serve(h, http.MethodGet, "/infra", func(r *http.Request) { r.Host = "maps.example.com" })
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/infra", func(r *http.Request) { r.Host = "attacker.test" })
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	passthrough := EnforceHost(nil, logger.NewNop())(okHandler)
	assert.Equal(t, http.StatusOK, serve(passthrough, http.MethodGet, "/", nil).Code)
}

func TestAllowOnlyCIDRS(t *testing.T) {
	h := AllowOnlyCIDRS([]string{"10.0.0.0/8", "192.168.1.4"}, []string{"192.168.1.0/24"}, logger.NewNop())(okHandler)

	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   int
	}{
		{"cidr match", func(r *http.Request) { r.RemoteAddr = "10.2.3.4:5000" }, http.StatusOK},
		{"exact ip", func(r *http.Request) { r.RemoteAddr = "192.168.1.4:1" }, http.StatusOK},
		{"forwarded ip from trusted proxy wins", func(r *http.Request) {
			r.RemoteAddr = "192.168.1.7:1"
			r.Header.Set("X-Forwarded-For", "203.0.113.9, 192.168.1.7")
		}, http.StatusForbidden},
		{"trusted proxy forwards allowed ip", func(r *http.Request) {
			r.RemoteAddr = "192.168.1.7:1"
			r.Header.Set("X-Forwarded-For", "10.9.9.9")
		}, http.StatusOK},
		{"spoofed forwarded ip from public peer", func(r *http.Request) {
			r.RemoteAddr = "203.0.113.5:1"
			r.Header.Set("X-Forwarded-For", "10.1.2.3")
			r.Header.Set("CF-Connecting-IP", "10.1.2.3")
		}, http.StatusForbidden},
		{"outside", func(r *http.Request) { r.RemoteAddr = "203.0.113.9:1" }, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(h, http.MethodGet, "/metrics", tt.mutate).Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := RateLimit(RateLimitConfig{Burst: 2, RefillPerIPPerMin: 60, Clock: clock})(okHandler)
	from := func(ip string) func(*http.Request) {
		return func(r *http.Request) { r.RemoteAddr = ip + ":1234" }
	}

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/", from("1.1.1.1")).Code)
	rec := serve(h, http.MethodPost, "/", from("1.1.1.1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(h, http.MethodPost, "/", from("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/", from("2.2.2.2")).Code)

	clock.Advance(time.Second)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/", from("1.1.1.1")).Code)
}

func TestRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := RateLimit(RateLimitConfig{Burst: 1, RefillPerIPPerMin: 1, Clock: clock})(okHandler)

	codes := make([]int, 0, 5)
	for i := range 5 {
		rec := serve(h, http.MethodPost, "/", func(r *http.Request) {
			r.RemoteAddr = "203.0.113.5:1234"
			r.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 429, 429, 429, 429}, codes)

	trusted := RateLimit(RateLimitConfig{Burst: 1, RefillPerIPPerMin: 1, Clock: clock, TrustedProxies: []string{"10.0.0.0/8"}})(okHandler)
	viaProxy := func(client string) func(*http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = "10.0.0.2:1234"
			r.Header.Set("X-Forwarded-For", client)
		}
	}
	assert.Equal(t, http.StatusOK, serve(trusted, http.MethodPost, "/", viaProxy("198.51.100.1")).Code)
	assert.Equal(t, http.StatusOK, serve(trusted, http.MethodPost, "/", viaProxy("198.51.100.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(trusted, http.MethodPost, "/", viaProxy("198.51.100.1")).Code)
}

func TestLimiterSweepsIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newLimiter(RateLimitConfig{Burst: 1, IdleTTL: time.Minute, SweepInterval: time.Minute, Clock: clock})

	l.allow("a", clock.Now())
	l.allow("b", clock.Now())
	assert.Equal(t, 2, l.size())

	clock.Advance(2 * time.Minute)
	l.sweepMaybe(clock.Now())
	assert.Equal(t, 0, l.size())
}
