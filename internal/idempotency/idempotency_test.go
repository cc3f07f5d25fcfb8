package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/store"
)

func setupGuard(t *testing.T) (*miniredis.Miniredis, *Guard) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewGuard(store.NewFromClient(client, zerolog.Nop()), zerolog.Nop())
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("89990001122", "sched-42")
	b := Fingerprint("89990001122", "sched-42")
	if a != b {
		t.Fatalf("same input produced different fingerprints: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d; want 64 hex chars", len(a))
	}
	if Fingerprint("89990001122", "sched-43") == a {
		t.Error("different schedule must produce a different fingerprint")
	}
	if Fingerprint("89990001123", "sched-42") == a {
		t.Error("different phone must produce a different fingerprint")
	}
}

func TestAcquire_FirstWinsSecondBlocked(t *testing.T) {
	_, g := setupGuard(t)
	ctx := context.Background()

	isNew, msg, err := g.Acquire(ctx, "89990001122", "sched-42")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !isNew || msg != "" {
		t.Fatalf("first Acquire = (%v, %q); want (true, \"\")", isNew, msg)
	}

	isNew, msg, err = g.Acquire(ctx, "89990001122", "sched-42")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if isNew {
		t.Fatal("second Acquire must not win")
	}
	if msg != AlreadyBookedMessage {
		t.Errorf("message = %q; want %q", msg, AlreadyBookedMessage)
	}
}

func TestAcquire_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	_, g := setupGuard(t)
	ctx := context.Background()

	const attempts = 50
	var winners atomic.Int64
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			isNew, _, err := g.Acquire(ctx, "89990001122", "sched-42")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if isNew {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := winners.Load(); n != 1 {
		t.Fatalf("winners = %d; want exactly 1", n)
	}
}

func TestRelease_UnblocksRetry(t *testing.T) {
	_, g := setupGuard(t)
	ctx := context.Background()

	if isNew, _, err := g.Acquire(ctx, "89990001122", "sched-42"); err != nil || !isNew {
		t.Fatalf("first Acquire = (%v, %v)", isNew, err)
	}
	if err := g.Release(ctx, "89990001122", "sched-42"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	isNew, msg, err := g.Acquire(ctx, "89990001122", "sched-42")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if !isNew || msg != "" {
		t.Fatalf("Acquire after release = (%v, %q); want (true, \"\")", isNew, msg)
	}
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	mr, g := setupGuard(t)
	ctx := context.Background()

	if isNew, _, _ := g.Acquire(ctx, "89990001122", "sched-42"); !isNew {
		t.Fatal("expected first Acquire to win")
	}

	mr.FastForward(LockTTL + time.Second)

	isNew, _, err := g.Acquire(ctx, "89990001122", "sched-42")
	if err != nil {
		t.Fatalf("Acquire after TTL: %v", err)
	}
	if !isNew {
		t.Fatal("expected lock to expire after TTL")
	}
}
