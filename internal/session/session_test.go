package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/store"
)

func setupManager(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewFromClient(client, zerolog.Nop())
	return mr, NewManager(st, zerolog.Nop(), opts...)
}

func TestManager_CreateAndLoad(t *testing.T) {
	_, m := setupManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, "", domain.ChannelTelegram, "chat-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.TraceID == "" {
		t.Error("expected generated trace id")
	}
	if created.State != domain.StateIdle {
		t.Errorf("State = %q; want %q", created.State, domain.StateIdle)
	}

	loaded, err := m.Load(ctx, domain.ChannelTelegram, "chat-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected stored session")
	}
	if loaded.TraceID != created.TraceID {
		t.Errorf("TraceID = %q; want %q", loaded.TraceID, created.TraceID)
	}
}

func TestManager_LoadMissing(t *testing.T) {
	_, m := setupManager(t)

	sess, err := m.Load(context.Background(), domain.ChannelTelegram, "unknown")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected nil for missing session, got %+v", sess)
	}
}

func TestManager_LoadCorrupt_TreatedAsAbsent(t *testing.T) {
	mr, m := setupManager(t)
	mr.Set("session:telegram:chat-9", "{broken")

	sess, err := m.Load(context.Background(), domain.ChannelTelegram, "chat-9")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected corrupt session to read as absent, got %+v", sess)
	}
}

func TestManager_SaveUsesStateTTL(t *testing.T) {
	mr, m := setupManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "t1", domain.ChannelTelegram, "chat-2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess.State = domain.StateBookingInProgress
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Booking-in-progress persists for 30 s, not the 24 h default.
	ttl := mr.TTL("session:telegram:chat-2")
	if ttl != 30*time.Second {
		t.Errorf("TTL = %v; want 30s", ttl)
	}

	sess.State = domain.StateConfirmBooking
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("session:telegram:chat-2"); ttl != 3*time.Hour {
		t.Errorf("TTL = %v; want 3h", ttl)
	}

	sess.State = domain.StateCollectingContact
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("session:telegram:chat-2"); ttl != DefaultTTL {
		t.Errorf("TTL = %v; want %v", ttl, DefaultTTL)
	}
}

func TestManager_GetOrCreate_ResetsTimedOut(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	_, m := setupManager(t, WithNow(func() time.Time { return clock() }))
	ctx := context.Background()

	sess, err := m.Create(ctx, "old-trace", domain.ChannelTelegram, "chat-3")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess.State = domain.StateConfirmBooking
	sess.Slots.Group = "Хип-хоп"
	sess.Slots.ClientPhone = "89990001122"
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Move past the 3 h confirm timeout (the stored key's 3 h TTL has not
	// been evicted by miniredis since we do not FastForward).
	later := now.Add(3*time.Hour + time.Minute)
	clock = func() time.Time { return later }

	got, err := m.GetOrCreate(ctx, "", domain.ChannelTelegram, "chat-3")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got.State != domain.StateIdle {
		t.Errorf("State = %q; want %q", got.State, domain.StateIdle)
	}
	if got.Slots.Group != "" || got.Slots.ClientPhone != "" {
		t.Errorf("expected slots cleared, got %+v", got.Slots)
	}
	if got.TraceID == "old-trace" {
		t.Error("expected trace id rotated on timeout reset")
	}
	if got.ChatID != "chat-3" || got.Channel != domain.ChannelTelegram {
		t.Errorf("conversation identity changed: %+v", got)
	}
}

func TestManager_GetOrCreate_KeepsLiveSession(t *testing.T) {
	_, m := setupManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "trace-x", domain.ChannelTelegram, "chat-4")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess.State = domain.StateCollectingGroup
	sess.Slots.ClientName = "Аня"
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.GetOrCreate(ctx, "", domain.ChannelTelegram, "chat-4")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got.State != domain.StateCollectingGroup {
		t.Errorf("State = %q; want %q", got.State, domain.StateCollectingGroup)
	}
	if got.Slots.ClientName != "Аня" {
		t.Errorf("ClientName = %q; want %q", got.Slots.ClientName, "Аня")
	}
	if got.TraceID != "trace-x" {
		t.Errorf("TraceID = %q; want %q", got.TraceID, "trace-x")
	}
}

func TestManager_KeyEviction_CreatesFresh(t *testing.T) {
	mr, m := setupManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "gone", domain.ChannelTelegram, "chat-5")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess.State = domain.StateBookingInProgress
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(31 * time.Second)

	got, err := m.GetOrCreate(ctx, "", domain.ChannelTelegram, "chat-5")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got.State != domain.StateIdle {
		t.Errorf("State = %q; want %q", got.State, domain.StateIdle)
	}
	if got.TraceID == "gone" {
		t.Error("expected a fresh session after key eviction")
	}
}
