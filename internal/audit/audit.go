// Package audit implements the persistence layer for the dialogue audit
// trail, backed by GORM. Every inbound and outbound message, model call and
// booking attempt lands here. Writes are fire-and-forget: an audit failure
// is logged and swallowed, it never blocks or fails the dialogue.
package audit

import (
	"context"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// MessageRecord is one message that crossed the channel boundary.
type MessageRecord struct {
	ID        string    `gorm:"primaryKey"`
	TraceID   string    `gorm:"index"`
	Channel   string    `gorm:"index"`
	ChatID    string    `gorm:"index"`
	Direction string    // in | out
	Content   string
	State     string
	CreatedAt time.Time
}

// ModelCallRecord is one call to the generation backend.
type ModelCallRecord struct {
	ID           string `gorm:"primaryKey"`
	TraceID      string `gorm:"index"`
	Intent       string
	InputTokens  int
	OutputTokens int
	CostCents    int64
	DurationMS   int64
	Failed       bool
	CreatedAt    time.Time
}

// ToolCallRecord is one CRM lookup made on behalf of a dialogue turn.
type ToolCallRecord struct {
	ID         string `gorm:"primaryKey"`
	TraceID    string `gorm:"index"`
	Tool       string
	Params     string
	ResultSize int
	DurationMS int64
	Error      string
	CreatedAt  time.Time
}

// BookingRecord is one attempt to commit a reservation.
type BookingRecord struct {
	ID          string `gorm:"primaryKey"`
	TraceID     string `gorm:"index"`
	Channel     string
	ChatID      string
	ScheduleID  int64
	ClientPhone string
	Outcome     string // confirmed | rejected | failed
	Detail      string
	CreatedAt   time.Time
}

// ErrorRecord is one classified failure surfaced to a user.
type ErrorRecord struct {
	ID        string `gorm:"primaryKey"`
	TraceID   string `gorm:"index"`
	Component string
	Message   string
	CreatedAt time.Time
}

// OpenSQLite opens (or creates) the audit database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates the audit tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&MessageRecord{},
		&ModelCallRecord{},
		&ToolCallRecord{},
		&BookingRecord{},
		&ErrorRecord{},
	)
}

// Sink writes audit rows. All Log methods return nothing: failures are
// logged at warn level and dropped.
type Sink struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewSink returns a Sink over an opened, migrated database.
func NewSink(db *gorm.DB, logger zerolog.Logger) *Sink {
	return &Sink{db: db, logger: logger.With().Str("component", "audit").Logger()}
}

// LogMessage records one message crossing the channel boundary.
func (s *Sink) LogMessage(ctx context.Context, traceID, channel, chatID, direction, content, state string) {
	s.insert(ctx, &MessageRecord{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		Channel:   channel,
		ChatID:    chatID,
		Direction: direction,
		Content:   content,
		State:     state,
		CreatedAt: time.Now().UTC(),
	})
}

// LogModelCall records one generation backend call.
func (s *Sink) LogModelCall(ctx context.Context, traceID, intent string, inputTokens, outputTokens int, costCents, durationMS int64, failed bool) {
	s.insert(ctx, &ModelCallRecord{
		ID:           uuid.NewString(),
		TraceID:      traceID,
		Intent:       intent,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostCents:    costCents,
		DurationMS:   durationMS,
		Failed:       failed,
		CreatedAt:    time.Now().UTC(),
	})
}

// LogToolCall records one CRM lookup made while handling a message.
func (s *Sink) LogToolCall(ctx context.Context, traceID, tool, params string, resultSize int, durationMS int64, callErr string) {
	s.insert(ctx, &ToolCallRecord{
		ID:         uuid.NewString(),
		TraceID:    traceID,
		Tool:       tool,
		Params:     params,
		ResultSize: resultSize,
		DurationMS: durationMS,
		Error:      callErr,
		CreatedAt:  time.Now().UTC(),
	})
}

// LogBooking records one reservation attempt and its outcome.
func (s *Sink) LogBooking(ctx context.Context, traceID, channel, chatID string, scheduleID int64, clientPhone, outcome, detail string) {
	s.insert(ctx, &BookingRecord{
		ID:          uuid.NewString(),
		TraceID:     traceID,
		Channel:     channel,
		ChatID:      chatID,
		ScheduleID:  scheduleID,
		ClientPhone: clientPhone,
		Outcome:     outcome,
		Detail:      detail,
		CreatedAt:   time.Now().UTC(),
	})
}

// LogError records a classified failure that reached a user.
func (s *Sink) LogError(ctx context.Context, traceID, component, message string) {
	s.insert(ctx, &ErrorRecord{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		Component: component,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Sink) insert(ctx context.Context, record any) {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.logger.Warn().Err(err).Type("record", record).Msg("audit write dropped")
	}
}

// RecentBookings returns the latest booking attempts, newest first. Used by
// the debug endpoint in test mode.
func (s *Sink) RecentBookings(ctx context.Context, limit int) ([]BookingRecord, error) {
	var out []BookingRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MessagesByTrace returns all messages of one dialogue trace in order.
func (s *Sink) MessagesByTrace(ctx context.Context, traceID string) ([]MessageRecord, error) {
	var out []MessageRecord
	err := s.db.WithContext(ctx).
		Where("trace_id = ?", traceID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
