// Package session persists conversation sessions in the key-value store.
// Keys are session:{channel}:{chatId}; the TTL follows the state the session
// is saved in, so a stalled confirmation ages out in hours while an in-flight
// booking ages out in seconds.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/fsm"
	"github.com/tbourn/go-booking-backend/internal/store"
)

// DefaultTTL is the session lifetime for states without their own timeout.
const DefaultTTL = 24 * time.Hour

// Manager loads, creates, and saves sessions.
type Manager struct {
	store  *store.Store
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithNow overrides the time source. Used by tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager backed by the given store.
func NewManager(st *store.Store, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{store: st, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func key(channel domain.Channel, chatID string) string {
	return fmt.Sprintf("session:%s:%s", channel, chatID)
}

// TTLFor returns the persistence TTL for a state: its own timeout when it has
// one, the session default otherwise.
func TTLFor(state domain.State) time.Duration {
	if ttl, ok := fsm.Timeout(state); ok {
		return ttl
	}
	return DefaultTTL
}

// Load fetches the stored session for (channel, chatID). A missing key
// returns (nil, nil). A value that fails to deserialize is treated as absent,
// not surfaced as an error: the caller gets a fresh conversation instead of a
// hard failure.
func (m *Manager) Load(ctx context.Context, channel domain.Channel, chatID string) (*domain.Session, error) {
	var sess domain.Session
	err := m.store.GetJSON(ctx, key(channel, chatID), &sess)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		m.logger.Warn().Err(err).
			Str("channel", string(channel)).
			Str("chat_id", chatID).
			Msg("stored session unreadable, treating as absent")
		return nil, nil
	}
	return &sess, nil
}

// Save refreshes UpdatedAt, recomputes ExpiresAt from the current state's
// TTL, and persists the session with that TTL.
func (m *Manager) Save(ctx context.Context, sess *domain.Session) error {
	now := m.now()
	ttl := TTLFor(sess.State)
	sess.UpdatedAt = now
	sess.ExpiresAt = now.Add(ttl)
	return m.store.SetJSON(ctx, key(sess.Channel, sess.ChatID), sess, ttl)
}

// Create builds and persists a fresh idle session. An empty traceID gets a
// generated one.
func (m *Manager) Create(ctx context.Context, traceID string, channel domain.Channel, chatID string) (*domain.Session, error) {
	if traceID == "" {
		traceID = domain.NewTraceID()
	}
	now := m.now()
	sess := &domain.Session{
		TraceID:   traceID,
		Channel:   channel,
		ChatID:    chatID,
		State:     domain.StateIdle,
		CreatedAt: now,
	}
	if err := m.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// TimedOut reports whether a session has exceeded its lifetime: either its
// absolute ExpiresAt has passed, or the current state has a timeout and the
// session has been idle longer than that.
func (m *Manager) TimedOut(sess *domain.Session) bool {
	now := m.now()
	if now.After(sess.ExpiresAt) {
		return true
	}
	if ttl, ok := fsm.Timeout(sess.State); ok {
		return now.Sub(sess.UpdatedAt) > ttl
	}
	return false
}

// ResetToIdle clears collected slots and returns the session to idle,
// keeping the conversation identity but rotating the trace id so the next
// exchange correlates as a new flow. The caller persists the result.
func (m *Manager) ResetToIdle(sess *domain.Session) {
	sess.State = domain.StateIdle
	sess.Slots = domain.SlotValues{}
	sess.TraceID = domain.NewTraceID()
}

// GetOrCreate returns a live session for the conversation: a fresh one if
// none is stored, a reset one if the stored session timed out, otherwise the
// stored session as-is.
func (m *Manager) GetOrCreate(ctx context.Context, traceID string, channel domain.Channel, chatID string) (*domain.Session, error) {
	sess, err := m.Load(ctx, channel, chatID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return m.Create(ctx, traceID, channel, chatID)
	}
	if m.TimedOut(sess) {
		prev := sess.State
		m.ResetToIdle(sess)
		if err := m.Save(ctx, sess); err != nil {
			return nil, err
		}
		m.logger.Info().
			Str("channel", string(channel)).
			Str("chat_id", chatID).
			Str("previous_state", string(prev)).
			Msg("session timed out, reset to idle")
	}
	return sess, nil
}
