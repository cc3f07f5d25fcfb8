package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/store"
)

func setupGuard(t *testing.T, limits Limits, opts ...Option) (*miniredis.Miniredis, *Guard) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewFromClient(client, zerolog.Nop())
	return mr, NewGuard(st, limits, zerolog.Nop(), opts...)
}

func TestGuard_RequestsPerMinute(t *testing.T) {
	_, g := setupGuard(t, Limits{RequestsPerMinute: 3})
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		ok, n, err := g.CheckRequestsPerMinute(ctx)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !ok || n != i {
			t.Fatalf("check %d = (%v, %d); want (true, %d)", i, ok, n, i)
		}
	}

	ok, n, err := g.CheckRequestsPerMinute(ctx)
	if err != nil {
		t.Fatalf("check over limit: %v", err)
	}
	if ok {
		t.Fatal("expected fourth request to be rejected")
	}
	if n != 3 {
		t.Errorf("current = %d; want 3 (rejected check must not increment)", n)
	}
}

func TestGuard_WindowRotation(t *testing.T) {
	base := time.Date(2025, 6, 14, 12, 0, 30, 0, time.UTC)
	now := base
	_, g := setupGuard(t, Limits{RequestsPerMinute: 1}, WithNow(func() time.Time { return now }))
	ctx := context.Background()

	if ok, _, _ := g.CheckRequestsPerMinute(ctx); !ok {
		t.Fatal("expected first request to pass")
	}
	if ok, _, _ := g.CheckRequestsPerMinute(ctx); ok {
		t.Fatal("expected second request in same minute to be rejected")
	}

	// New minute, new bucket key: counting restarts.
	now = base.Add(time.Minute)
	if ok, _, _ := g.CheckRequestsPerMinute(ctx); !ok {
		t.Fatal("expected request in next minute to pass")
	}
}

// The day counter is exact to the cent: with a $1 daily limit, 99999 cents
// fits, neither of the next two cents-sized attempts that would cross
// 100000 is admitted as a lump, and the final single cent lands exactly on
// the limit.
func TestGuard_CostPerDay_CentBoundary(t *testing.T) {
	_, g := setupGuard(t, Limits{CostPerDayUSD: 1000})
	ctx := context.Background()

	ok, n, err := g.CheckCostPerDay(ctx, 99_999)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !ok || n != 99_999 {
		t.Fatalf("seed = (%v, %d); want (true, 99999)", ok, n)
	}

	for i := 0; i < 2; i++ {
		ok, n, err = g.CheckCostPerDay(ctx, 2)
		if err != nil {
			t.Fatalf("over-limit attempt: %v", err)
		}
		if ok {
			t.Fatal("expected 2-cent increment past the limit to be rejected")
		}
		if n != 99_999 {
			t.Errorf("current = %d; want 99999 unchanged", n)
		}
	}

	ok, n, err = g.CheckCostPerDay(ctx, 1)
	if err != nil {
		t.Fatalf("final cent: %v", err)
	}
	if !ok || n != 100_000 {
		t.Fatalf("final cent = (%v, %d); want (true, 100000)", ok, n)
	}
}

func TestGuard_RecordError_Unconditional(t *testing.T) {
	_, g := setupGuard(t, Limits{ErrorsPerHour: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		within, err := g.RecordError(ctx)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if !within {
			t.Fatalf("error %d: expected within limit", i+1)
		}
	}

	// Third error still increments, just reports the limit as exceeded.
	within, err := g.RecordError(ctx)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if within {
		t.Fatal("expected third error to exceed the limit")
	}

	breached, err := g.IsBreached(ctx)
	if err != nil {
		t.Fatalf("IsBreached: %v", err)
	}
	if !breached {
		t.Fatal("expected breach snapshot after exceeding errors/hour")
	}
}

func TestGuard_CheckAll_OrderAndNoRollback(t *testing.T) {
	_, g := setupGuard(t, Limits{
		RequestsPerMinute: 10,
		TokensPerHour:     100,
		CostPerDayUSD:     1,
	})
	ctx := context.Background()

	// Token breach: the request counter has already been incremented and
	// stays incremented.
	err := g.CheckAll(ctx, 200, 1)
	var breach *BreachError
	if !errors.As(err, &breach) {
		t.Fatalf("CheckAll = %v; want BreachError", err)
	}
	if breach.Reason != ReasonTokensPerHour {
		t.Errorf("Reason = %q; want %q", breach.Reason, ReasonTokensPerHour)
	}

	_, n, err := g.CheckRequestsPerMinute(ctx)
	if err != nil {
		t.Fatalf("requests check: %v", err)
	}
	if n != 2 {
		t.Errorf("requests counter = %d; want 2 (1 from failed CheckAll + this check)", n)
	}
}

func TestGuard_CheckAll_Passes(t *testing.T) {
	_, g := setupGuard(t, Limits{
		RequestsPerMinute: 10,
		TokensPerHour:     1000,
		CostPerDayUSD:     5,
	})
	if err := g.CheckAll(context.Background(), 300, 12); err != nil {
		t.Fatalf("CheckAll = %v; want nil", err)
	}
}

func TestGuard_BucketTTL(t *testing.T) {
	base := time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)
	mr, g := setupGuard(t, Limits{RequestsPerMinute: 5}, WithNow(func() time.Time { return base }))

	if ok, _, _ := g.CheckRequestsPerMinute(context.Background()); !ok {
		t.Fatal("expected request to pass")
	}

	key := "budget:requests:minute:" + base.Format(time.RFC3339)
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Errorf("TTL = %v; want 1m", ttl)
	}
}
