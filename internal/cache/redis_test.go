package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestCache_MissReturnsEmptyString(t *testing.T) {
	c, _ := setupTestCache(t)

	val, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if val != "" {
		t.Errorf("Expected empty string on miss, got %q", val)
	}
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := setupTestCache(t)

	if err := c.Set(context.Background(), "greeting", "hello", time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	val, err := c.Get(context.Background(), "greeting")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if val != "hello" {
		t.Errorf("Expected hello, got %q", val)
	}
}

func TestCache_TTLExpires(t *testing.T) {
	c, mr := setupTestCache(t)

	if err := c.Set(context.Background(), "greeting", "hello", time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	val, err := c.Get(context.Background(), "greeting")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if val != "" {
		t.Errorf("Expected expired key to miss, got %q", val)
	}
}

func TestCache_Del(t *testing.T) {
	c, _ := setupTestCache(t)

	if err := c.Set(context.Background(), "a", "1", time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := c.Set(context.Background(), "b", "2", time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if err := c.Del(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Del() failed: %v", err)
	}
	if val, _ := c.Get(context.Background(), "a"); val != "" {
		t.Errorf("Expected a deleted, got %q", val)
	}

	// Deleting nothing is a no-op.
	if err := c.Del(context.Background()); err != nil {
		t.Fatalf("Del() with no keys failed: %v", err)
	}
}
