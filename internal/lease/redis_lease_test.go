package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestLease(t *testing.T, ttl time.Duration) (*RedisLease, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	l, err := NewRedisLease("redis://"+s.Addr(), "indexsync", ttl)
	if err != nil {
		t.Fatalf("failed to create redis lease: %v", err)
	}
	return l, s
}

func TestNewRedisLeaseRejectsBadURL(t *testing.T) {
	if _, err := NewRedisLease("not-a-url", "indexsync", time.Second); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	l, _ := setupTestLease(t, time.Minute)
	defer l.Close()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = l.Acquire(ctx, "run-2")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("expected second acquire to fail while lease is held")
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	l, s := setupTestLease(t, time.Minute)
	defer l.Close()
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "run-1"); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Release(ctx, "run-2"); err != nil {
		t.Fatalf("release by stranger: %v", err)
	}
	if !s.Exists("lease:indexsync") {
		t.Fatal("lease released by a non-holder")
	}

	if err := l.Release(ctx, "run-1"); err != nil {
		t.Fatalf("release by holder: %v", err)
	}
	if s.Exists("lease:indexsync") {
		t.Fatal("lease still held after release")
	}
	if ok, _ := l.Acquire(ctx, "run-2"); !ok {
		t.Fatal("expected lease to be free after release")
	}
}

func TestLeaseExpires(t *testing.T) {
	l, s := setupTestLease(t, 30*time.Second)
	defer l.Close()
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "run-1"); !ok {
		t.Fatal("acquire failed")
	}
	s.FastForward(31 * time.Second)

	ok, err := l.Acquire(ctx, "run-2")
	if err != nil || !ok {
		t.Fatalf("expected expired lease to be reacquired: ok=%v err=%v", ok, err)
	}
}
