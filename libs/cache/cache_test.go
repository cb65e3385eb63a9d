package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryMaxAge(t *testing.T) {
	m, err := NewMemory(4)
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	if err := m.Set(ctx, "rates:usd", []byte("36.5")); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(4 * time.Minute)
	v, ok, err := m.Get(ctx, "rates:usd", 5*time.Minute)
	if err != nil || !ok || string(v) != "36.5" {
		t.Fatalf("expected hit, got %q ok=%v err=%v", v, ok, err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "rates:usd", 5*time.Minute); ok {
		t.Fatal("expected stale entry to miss")
	}
	if m.Len() != 0 {
		t.Fatalf("expected stale entry evicted, len=%d", m.Len())
	}
}

func TestMemoryNoAgeLimitAndDelete(t *testing.T) {
	m, err := NewMemory(0)
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	ctx := context.Background()
	src := []byte("a")
	_ = m.Set(ctx, "k", src)
	src[0] = 'b'

	v, ok, _ := m.Get(ctx, "k", 0)
	if !ok || string(v) != "a" {
		t.Fatalf("expected stored copy, got %q ok=%v", v, ok)
	}
	_ = m.Delete(ctx, "k")
	if _, ok, _ := m.Get(ctx, "k", 0); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestRedisEntryEncoding(t *testing.T) {
	at := time.UnixMilli(1767225600000)
	storedAt, value, ok := decodeEntry(encodeEntry(at, []byte("payload")))
	if !ok || !storedAt.Equal(at) || string(value) != "payload" {
		t.Fatalf("unexpected decode: %v %q %v", storedAt, value, ok)
	}
	if _, _, ok := decodeEntry([]byte{1, 2}); ok {
		t.Fatal("expected short entry to be rejected")
	}
}
