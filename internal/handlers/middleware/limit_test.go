package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courseadvisor/internal/handlers/authctx"
	"github.com/nkiryanov/courseadvisor/internal/models"
)

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	t.Run("burst then reject", func(t *testing.T) {
		l := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 2})
		now := time.Now()
		l.now = func() time.Time { return now }
		h := l.Middleware(ok)

		require.Equal(t, http.StatusOK, do(h, "10.0.0.1:1234").Code)
		require.Equal(t, http.StatusOK, do(h, "10.0.0.1:1235").Code, "port does not matter")

		w := do(h, "10.0.0.1:1236")
		require.Equal(t, http.StatusTooManyRequests, w.Code)
		require.JSONEq(t, `{"error": "service_error", "message": "Too many requests"}`, w.Body.String())
		require.Equal(t, "60", w.Header().Get("Retry-After"))

		require.Equal(t, http.StatusOK, do(h, "10.0.0.2:1234").Code, "other client has its own bucket")
	})

	t.Run("refill", func(t *testing.T) {
		l := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 1})
		now := time.Now()
		l.now = func() time.Time { return now }
		h := l.Middleware(ok)

		require.Equal(t, http.StatusOK, do(h, "10.0.0.1:1").Code)
		require.Equal(t, http.StatusTooManyRequests, do(h, "10.0.0.1:1").Code)

		now = now.Add(time.Minute)
		require.Equal(t, http.StatusOK, do(h, "10.0.0.1:1").Code, "token has to be refilled after a minute")
	})

	t.Run("forwarded for ignored without trusted proxies", func(t *testing.T) {
		l := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 1})
		now := time.Now()
		l.now = func() time.Time { return now }
		h := l.Middleware(ok)

		allowed := 0
		for i := range 100 {
			r := httptest.NewRequest(http.MethodPost, "/login", nil)
			r.RemoteAddr = "198.51.100.9:4000"
			r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code == http.StatusOK {
				allowed++
			}
		}

		require.Equal(t, 1, allowed, "spoofed forwarded addresses share the peer bucket")
		require.Len(t, l.clients, 1)
	})

	t.Run("client ip", func(t *testing.T) {
		trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1", " "})
		require.NoError(t, err)
		l := NewRateLimiter(RateLimitConfig{TrustedProxies: trusted})

		tests := []struct {
			name       string
			remoteAddr string
			forwarded  []string
			expected   string
		}{
			{"no proxy", "203.0.113.7:1234", nil, "203.0.113.7"},
			{"untrusted peer header ignored", "203.0.113.7:1234", []string{"1.1.1.1"}, "203.0.113.7"},
			{"trusted peer", "10.0.0.1:1234", []string{"203.0.113.7"}, "203.0.113.7"},
			{"right-most untrusted hop", "10.0.0.1:1234", []string{"1.1.1.1, 203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
			{"spoofed left hops ignored", "192.0.2.1:1234", []string{"1.1.1.1", "203.0.113.7"}, "203.0.113.7"},
			{"trusted peer without header", "10.0.0.1:1234", nil, "10.0.0.1"},
			{"malformed hop", "10.0.0.1:1234", []string{"203.0.113.7, garbage"}, "10.0.0.1"},
			{"all hops trusted", "10.0.0.1:1234", []string{"10.0.0.3, 10.0.0.2"}, "10.0.0.3"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r := httptest.NewRequest(http.MethodPost, "/login", nil)
				r.RemoteAddr = tt.remoteAddr
				for _, v := range tt.forwarded {
					r.Header.Add("X-Forwarded-For", v)
				}

				require.Equal(t, tt.expected, l.clientIP(r))
			})
		}
	})

	t.Run("parse trusted proxies", func(t *testing.T) {
		prefixes, err := ParseTrustedProxies([]string{"10.1.2.3/8", "::1", "192.0.2.1"})
		require.NoError(t, err)
		require.Equal(t, []netip.Prefix{
			netip.MustParsePrefix("10.0.0.0/8"),
			netip.MustParsePrefix("::1/128"),
			netip.MustParsePrefix("192.0.2.1/32"),
		}, prefixes)

		_, err = ParseTrustedProxies([]string{"proxy.local"})
		require.Error(t, err)

		_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
		require.Error(t, err)
	})

	t.Run("idle clients are dropped", func(t *testing.T) {
		l := NewRateLimiter(RateLimitConfig{})
		now := time.Now()
		l.now = func() time.Time { return now }

		require.True(t, l.allow("a"))
		now = now.Add(2 * limiterIdleTTL)
		require.True(t, l.allow("b"))

		require.Len(t, l.clients, 1)
		require.Contains(t, l.clients, "b")
	})
}

func TestTokenLimiter(t *testing.T) {
	withClaims := func(r *http.Request, tokenID string) *http.Request {
		return r.WithContext(authctx.New(r.Context(), models.AuthClaims{TokenID: tokenID, Authenticated: true}))
	}

	t.Run("unlimited", func(t *testing.T) {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

		l := NewTokenLimiter(0)

		require.NotNil(t, l.Middleware(h))
	})

	t.Run("reject over limit", func(t *testing.T) {
		entered := make(chan struct{})
		unblock := make(chan struct{})
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entered <- struct{}{}
			<-unblock
			w.WriteHeader(http.StatusOK)
		})
		mw := NewTokenLimiter(1).Middleware(h)

		var wg sync.WaitGroup
		first := httptest.NewRecorder()
		wg.Add(1)
		go func() {
			defer wg.Done()
			mw.ServeHTTP(first, withClaims(httptest.NewRequest(http.MethodPost, "/chat", nil), "token-a"))
		}()
		<-entered

		second := httptest.NewRecorder()
		mw.ServeHTTP(second, withClaims(httptest.NewRequest(http.MethodPost, "/chat", nil), "token-a"))
		require.Equal(t, http.StatusTooManyRequests, second.Code, "same token is limited")

		// Other token is not affected
		other := httptest.NewRecorder()
		wg.Add(1)
		go func() {
			defer wg.Done()
			mw.ServeHTTP(other, withClaims(httptest.NewRequest(http.MethodPost, "/chat", nil), "token-b"))
		}()
		<-entered

		close(unblock)
		wg.Wait()
		require.Equal(t, http.StatusOK, first.Code)
		require.Equal(t, http.StatusOK, other.Code)

		// Slot is released after request completes
		third := httptest.NewRecorder()
		go func() { <-entered }()
		mw.ServeHTTP(third, withClaims(httptest.NewRequest(http.MethodPost, "/chat", nil), "token-a"))
		require.Equal(t, http.StatusOK, third.Code)
	})
}
