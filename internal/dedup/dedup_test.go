package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFilter_UnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer rdb.Close()

	ok, err := NewFilter(rdb, time.Hour).IsNew(context.Background(), "m1")
	if err == nil {
		t.Fatal("IsNew() error = nil, want connection error")
	}
	if ok {
		t.Error("IsNew() = true on error")
	}
}

func TestNewFilter_DefaultTTL(t *testing.T) {
	f := NewFilter(nil, 0)
	if f.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", f.ttl, DefaultTTL)
	}
}

func TestOpen_BadURL(t *testing.T) {
	if _, _, err := Open(context.Background(), "http://not-redis", time.Hour); err == nil {
		t.Error("Open() error = nil for non-redis URL")
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }

	if ok, _ := m.IsNew(ctx, "m1"); !ok {
		t.Error("first IsNew(m1) = false")
	}
	if ok, _ := m.IsNew(ctx, "m1"); ok {
		t.Error("second IsNew(m1) = true")
	}
	if ok, _ := m.IsNew(ctx, "m2"); !ok {
		t.Error("IsNew(m2) = false")
	}

	m.Forget(ctx, "m1")
	if ok, _ := m.IsNew(ctx, "m1"); !ok {
		t.Error("IsNew(m1) after Forget = false")
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := m.IsNew(ctx, "m2"); !ok {
		t.Error("IsNew(m2) after ttl = false")
	}
}
