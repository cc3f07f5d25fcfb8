// Package idempotency prevents duplicate bookings. A lock is keyed by the
// content of the attempt, not by message identity: the same (phone, schedule)
// pair always maps to the same fingerprint, so retries, double taps, and
// concurrent confirmations within the TTL window collapse into one booking.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/store"
)

// LockTTL bounds how long a claimed fingerprint blocks further attempts.
const LockTTL = 10 * time.Minute

// AlreadyBookedMessage is returned to the user when the lock is already held.
const AlreadyBookedMessage = "Вы уже записаны на это занятие ✅"

// Guard issues content-addressed booking locks on top of the store.
type Guard struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewGuard returns a Guard backed by the given store.
func NewGuard(st *store.Store, logger zerolog.Logger) *Guard {
	return &Guard{store: st, logger: logger}
}

// Fingerprint derives the lock identity from the booking content.
func Fingerprint(phone, scheduleID string) string {
	sum := sha256.Sum256([]byte(phone + scheduleID))
	return hex.EncodeToString(sum[:])
}

func lockKey(phone, scheduleID string) string {
	return "idempotency:" + Fingerprint(phone, scheduleID)
}

// Acquire atomically claims the lock for (phone, scheduleID). Exactly one of
// arbitrarily many concurrent callers observes isNew = true; the rest get
// the already-booked message. The returned message is empty on success.
func (g *Guard) Acquire(ctx context.Context, phone, scheduleID string) (isNew bool, message string, err error) {
	won, err := g.store.SetNX(ctx, lockKey(phone, scheduleID), "1", LockTTL)
	if err != nil {
		return false, "", err
	}
	if !won {
		return false, AlreadyBookedMessage, nil
	}
	return true, "", nil
}

// Release unconditionally deletes the lock. Called only as a compensating
// action when a booking attempt fails after the lock was acquired, so a
// legitimate retry is not blocked by a stale claim.
func (g *Guard) Release(ctx context.Context, phone, scheduleID string) error {
	return g.store.Del(ctx, lockKey(phone, scheduleID))
}
