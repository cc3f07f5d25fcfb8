package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/store"
)

const fallbackQueueKey = "crm:fallback:queue"

// Notifier delivers one-shot operator alerts. The Telegram admin channel
// implements it; failures must never fail the enclosing call.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// FallbackItem is one queued request that could not be served by the CRM and
// must be handled manually.
type FallbackItem struct {
	ID        string         `json:"id"`
	TraceID   string         `json:"trace_id"`
	Action    string         `json:"action"`
	Data      map[string]any `json:"data"`
	Error     string         `json:"error"`
	CreatedAt time.Time      `json:"created_at"`
}

// FallbackQueue is a durable FIFO of failed requests with a best-effort
// operator alert on every enqueue.
type FallbackQueue struct {
	store    *store.Store
	notifier Notifier
	logger   zerolog.Logger
}

// NewFallbackQueue returns a queue on the given store. notifier may be nil.
func NewFallbackQueue(st *store.Store, notifier Notifier, logger zerolog.Logger) *FallbackQueue {
	return &FallbackQueue{store: st, notifier: notifier, logger: logger}
}

// Enqueue appends a failed request and alerts the operator. The alert is
// fire-and-forget: its failure is logged, not returned.
func (q *FallbackQueue) Enqueue(ctx context.Context, action string, data map[string]any, errText, traceID string) error {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	item := FallbackItem{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		Action:    action,
		Data:      data,
		Error:     errText,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal fallback item: %w", err)
	}
	if err := q.store.LPush(ctx, fallbackQueueKey, string(raw)); err != nil {
		return err
	}
	q.alert(ctx, item)
	return nil
}

func (q *FallbackQueue) alert(ctx context.Context, item FallbackItem) {
	if q.notifier == nil {
		return
	}
	data, _ := json.MarshalIndent(item.Data, "", "  ")
	text := fmt.Sprintf(
		"⚠️ CRM Fallback Queue\n\nAction: %s\nError: %s\nTrace ID: %s\nCreated: %s\n\nData: %s",
		item.Action, item.Error, item.TraceID, item.CreatedAt.Format(time.RFC3339), data,
	)
	if err := q.notifier.Notify(ctx, text); err != nil {
		q.logger.Warn().Err(err).Str("action", item.Action).Msg("fallback admin alert failed")
	}
}

// Dequeue pops the oldest item. Returns (nil, nil) on an empty queue; an
// undecodable item is dropped and also reported as (nil, nil).
func (q *FallbackQueue) Dequeue(ctx context.Context) (*FallbackItem, error) {
	raw, err := q.store.RPop(ctx, fallbackQueueKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var item FallbackItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		q.logger.Warn().Err(err).Msg("dropping undecodable fallback item")
		return nil, nil
	}
	return &item, nil
}

// Size returns the queue depth.
func (q *FallbackQueue) Size(ctx context.Context) (int64, error) {
	return q.store.LLen(ctx, fallbackQueueKey)
}
