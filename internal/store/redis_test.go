package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewFromClient(client, zerolog.Nop())
}

func TestStore_JSONRoundTrip(t *testing.T) {
	_, st := setupStore(t)
	ctx := context.Background()

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := st.SetJSON(ctx, "doc:1", doc{Name: "anna", Count: 3}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var out doc
	if err := st.GetJSON(ctx, "doc:1", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "anna" || out.Count != 3 {
		t.Errorf("got %+v; want {anna 3}", out)
	}
}

func TestStore_GetJSON_Missing(t *testing.T) {
	_, st := setupStore(t)

	var out map[string]any
	err := st.GetJSON(context.Background(), "nope", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetJSON missing = %v; want ErrNotFound", err)
	}
}

func TestStore_GetJSON_Corrupt(t *testing.T) {
	mr, st := setupStore(t)
	mr.Set("bad", "{not json")

	var out map[string]any
	err := st.GetJSON(context.Background(), "bad", &out)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("GetJSON corrupt = %v; want unmarshal error", err)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	mr, st := setupStore(t)
	ctx := context.Background()

	if err := st.Set(ctx, "k", "v", 100*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := st.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	mr.FastForward(200 * time.Millisecond)

	if _, err := st.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after expiry = %v; want ErrNotFound", err)
	}
}

func TestStore_SetNX(t *testing.T) {
	_, st := setupStore(t)
	ctx := context.Background()

	won, err := st.SetNX(ctx, "lock", "a", time.Minute)
	if err != nil {
		t.Fatalf("SetNX: %v", err)
	}
	if !won {
		t.Fatal("expected first SetNX to win")
	}

	won, err = st.SetNX(ctx, "lock", "b", time.Minute)
	if err != nil {
		t.Fatalf("SetNX second: %v", err)
	}
	if won {
		t.Fatal("expected second SetNX to lose")
	}

	// Value must be the first claimer's.
	val, err := st.Get(ctx, "lock")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "a" {
		t.Errorf("lock value = %q; want %q", val, "a")
	}
}

func TestStore_IncrByAndExpire(t *testing.T) {
	mr, st := setupStore(t)
	ctx := context.Background()

	n, err := st.IncrBy(ctx, "counter", 5)
	if err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if n != 5 {
		t.Errorf("IncrBy = %d; want 5", n)
	}
	n, _ = st.IncrBy(ctx, "counter", 2)
	if n != 7 {
		t.Errorf("IncrBy = %d; want 7", n)
	}

	ok, err := st.Expire(ctx, "counter", time.Second)
	if err != nil || !ok {
		t.Fatalf("Expire = (%v, %v); want (true, nil)", ok, err)
	}
	mr.FastForward(2 * time.Second)

	n, err = st.IncrBy(ctx, "counter", 1)
	if err != nil {
		t.Fatalf("IncrBy after expiry: %v", err)
	}
	if n != 1 {
		t.Errorf("IncrBy after expiry = %d; want 1 (fresh window)", n)
	}
}

func TestStore_ListFIFO(t *testing.T) {
	_, st := setupStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := st.LPush(ctx, "q", fmt.Sprintf("item-%d", i)); err != nil {
			t.Fatalf("LPush: %v", err)
		}
	}

	n, err := st.LLen(ctx, "q")
	if err != nil || n != 3 {
		t.Fatalf("LLen = (%d, %v); want (3, nil)", n, err)
	}

	// LPush + RPop is FIFO: oldest out first.
	for i := 1; i <= 3; i++ {
		got, err := st.RPop(ctx, "q")
		if err != nil {
			t.Fatalf("RPop: %v", err)
		}
		if want := fmt.Sprintf("item-%d", i); got != want {
			t.Errorf("RPop = %q; want %q", got, want)
		}
	}

	if _, err := st.RPop(ctx, "q"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RPop empty = %v; want ErrNotFound", err)
	}
}

func TestStore_ScanDelete(t *testing.T) {
	_, st := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := st.Set(ctx, fmt.Sprintf("crm:cache:schedule:%d", i), "x", 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := st.Set(ctx, "crm:cache:groups:all", "y", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	n, err := st.ScanDelete(ctx, "crm:cache:schedule:*")
	if err != nil {
		t.Fatalf("ScanDelete: %v", err)
	}
	if n != 5 {
		t.Errorf("ScanDelete = %d; want 5", n)
	}

	// Non-matching key survives.
	if _, err := st.Get(ctx, "crm:cache:groups:all"); err != nil {
		t.Errorf("expected groups key to survive, got %v", err)
	}
}

func TestStore_Ping(t *testing.T) {
	mr, st := setupStore(t)
	ctx := context.Background()

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()
	if err := st.Ping(ctx); err == nil {
		t.Fatal("expected ping to fail after server shutdown")
	}
}
