package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/Mihendy/pp-2025/internal/cache"
	"github.com/Mihendy/pp-2025/internal/cache/memory"
)

func TestCache_SetGetDelete(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "session", []byte("42:notes.docx"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := c.Get(ctx, "session")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "42:notes.docx" {
		t.Errorf("expected '42:notes.docx', got %q", string(val))
	}

	c.Delete(ctx, "session")
	if _, err := c.Get(ctx, "session"); err != cache.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCache_Expiration(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	exists, _ := c.Exists(ctx, "k")
	if !exists {
		t.Error("key should exist initially")
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); err != cache.ErrExpired {
		t.Errorf("expected ErrExpired, got %v", err)
	}
	exists, _ = c.Exists(ctx, "k")
	if exists {
		t.Error("expired key should not exist")
	}
}

func TestCounter_IncrementWindow(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	count, resetAt, err := c.Increment(ctx, "login:1.2.3.4", 1, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1, got %d", count)
	}

	count, resetAt2, _ := c.Increment(ctx, "login:1.2.3.4", 1, time.Minute)
	if count != 2 {
		t.Errorf("expected 2, got %d", count)
	}
	// Same window keeps the same reset time
	if resetAt2.Sub(resetAt) > time.Second {
		t.Errorf("resetAt changed within window: %v -> %v", resetAt, resetAt2)
	}

	count, _ = c.GetCount(ctx, "login:1.2.3.4")
	if count != 2 {
		t.Errorf("GetCount: expected 2, got %d", count)
	}
}

func TestCounter_ExpirationAndReset(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	_, _, _ = c.Increment(ctx, "k", 10, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	count, _ := c.GetCount(ctx, "k")
	if count != 0 {
		t.Errorf("expected 0 after expiration, got %d", count)
	}
	count, _, _ = c.Increment(ctx, "k", 1, time.Minute)
	if count != 1 {
		t.Errorf("expected fresh counter after expiry, got %d", count)
	}

	c.Reset(ctx, "k")
	count, _ = c.GetCount(ctx, "k")
	if count != 0 {
		t.Errorf("expected 0 after reset, got %d", count)
	}
}

func TestNew_RegisteredDriver(t *testing.T) {
	c, err := cache.New("memory", map[string]any{"default_ttl_seconds": 1})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	defer c.Close()

	if _, err := cache.New("redis", nil); err == nil {
		t.Error("expected error for unregistered driver")
	}
}
