package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cachememory "github.com/Mihendy/pp-2025/internal/cache/memory"
	"github.com/Mihendy/pp-2025/internal/ratelimit"
)

func TestAllow_WindowQuota(t *testing.T) {
	c := cachememory.New(time.Minute, 0)
	defer c.Close()

	limiter := ratelimit.New(c, &ratelimit.Config{
		RequestsPerWindow: 3,
		Window:            time.Minute,
		KeyPrefix:         "test:",
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	res, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if res.Allowed {
		t.Error("fourth request should be rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", res.Remaining)
	}

	// Other clients have their own window.
	other, err := limiter.Allow(ctx, "5.6.7.8")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !other.Allowed {
		t.Error("separate key should not share the quota")
	}

	if err := limiter.Reset(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	res, err = limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !res.Allowed {
		t.Error("request after reset should be allowed")
	}
}

func TestMiddleware_TooManyRequests(t *testing.T) {
	c := cachememory.New(time.Minute, 0)
	defer c.Close()

	limiter := ratelimit.New(c, &ratelimit.Config{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		KeyPrefix:         "mw:",
	})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.1:4567"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}

func TestKeyFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:9999"
	if got := ratelimit.KeyFromRequest(req); got != "192.168.1.9" {
		t.Errorf("expected RemoteAddr without port, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ratelimit.KeyFromRequest(req); got != "203.0.113.7" {
		t.Errorf("expected first forwarded hop, got %q", got)
	}
}
