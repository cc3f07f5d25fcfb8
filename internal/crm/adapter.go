package crm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-booking-backend/internal/store"
)

// Adapter is the resilience boundary in front of the CRM. Reads go through
// the cache; writes invalidate it; every failure leaves as a classified
// *Error, and failures that must not lose the request land on the fallback
// queue first.
type Adapter struct {
	client   *HTTPClient
	cache    *Cache
	fallback *FallbackQueue
	logger   zerolog.Logger
}

// NewAdapter builds the full resilience stack on the given store.
func NewAdapter(client *HTTPClient, st *store.Store, notifier Notifier, logger zerolog.Logger) *Adapter {
	return &Adapter{
		client:   client,
		cache:    NewCache(st, logger),
		fallback: NewFallbackQueue(st, notifier, logger),
		logger:   logger,
	}
}

// fail classifies err, enqueues a fallback record when the classification
// demands it, and returns the normalized error.
func (a *Adapter) fail(ctx context.Context, action string, args map[string]any, traceID string, err error) error {
	cerr := classified(err)
	if cerr.EnqueueFallback {
		if qErr := a.fallback.Enqueue(ctx, action, args, err.Error(), traceID); qErr != nil {
			a.logger.Error().Err(qErr).Str("action", action).Msg("fallback enqueue failed")
		}
	}
	a.logger.Warn().Err(err).
		Str("action", action).
		Str("trace_id", traceID).
		Bool("fallback", cerr.EnqueueFallback).
		Msg("crm call failed")
	return cerr
}

// GetSchedule lists schedule entries, cache-first. The cache key is derived
// from the filter parameters so distinct filters never collide.
func (a *Adapter) GetSchedule(ctx context.Context, dateFrom, dateTo string, groupID int64) ([]Schedule, error) {
	tr := otel.Tracer("crm/Adapter")
	ctx, span := tr.Start(ctx, "GetSchedule",
		trace.WithAttributes(
			attribute.String("date.from", dateFrom),
			attribute.String("date.to", dateTo),
			attribute.Int64("group.id", groupID),
		),
	)
	defer span.End()

	paramsKey := fmt.Sprintf("%s_%s_%d", dateFrom, dateTo, groupID)
	var cached []Schedule
	if a.cache.Get(ctx, "schedule", paramsKey, &cached) {
		return cached, nil
	}

	columns := map[string]any{}
	if dateFrom != "" {
		columns["date"] = dateFrom
	}
	if groupID != 0 {
		columns["group_id"] = groupID
	}
	var schedules []Schedule
	err := a.client.List(ctx, "schedule", ListRequest{
		Fields:  []string{"id", "group_id", "teacher_id", "hall_id", "date", "time", "duration_minutes", "max_students", "current_students", "is_active"},
		Columns: columns,
	}, &schedules)
	if err != nil {
		return nil, a.fail(ctx, "get_schedule", map[string]any{
			"date_from": dateFrom, "date_to": dateTo, "group_id": groupID,
		}, traceFrom(ctx), err)
	}

	a.cache.Set(ctx, "schedule", paramsKey, schedules)
	return schedules, nil
}

// GetGroups lists all groups, cache-first under the single key "all".
func (a *Adapter) GetGroups(ctx context.Context) ([]Group, error) {
	tr := otel.Tracer("crm/Adapter")
	ctx, span := tr.Start(ctx, "GetGroups")
	defer span.End()

	var cached []Group
	if a.cache.Get(ctx, "groups", "all", &cached) {
		return cached, nil
	}

	var groups []Group
	err := a.client.List(ctx, "group", ListRequest{
		Fields: []string{"id", "name", "style_id", "teacher_id", "description", "is_active"},
	}, &groups)
	if err != nil {
		return nil, a.fail(ctx, "get_groups", map[string]any{}, traceFrom(ctx), err)
	}

	a.cache.Set(ctx, "groups", "all", groups)
	return groups, nil
}

// FindClient looks a client up by phone. A missing client is (nil, nil), not
// an error.
func (a *Adapter) FindClient(ctx context.Context, phone string) (*Client, error) {
	tr := otel.Tracer("crm/Adapter")
	ctx, span := tr.Start(ctx, "FindClient")
	defer span.End()

	var clients []Client
	err := a.client.List(ctx, "client", ListRequest{
		Fields:  []string{"id", "name", "phone", "email", "informer_id"},
		Columns: map[string]any{"phone": phone},
		Limit:   1,
	}, &clients)
	if err != nil {
		return nil, a.fail(ctx, "find_client", map[string]any{"phone": phone}, traceFrom(ctx), err)
	}
	if len(clients) == 0 {
		return nil, nil
	}
	return &clients[0], nil
}

// CreateClient registers a new client.
func (a *Adapter) CreateClient(ctx context.Context, name, phone string) (*Client, error) {
	tr := otel.Tracer("crm/Adapter")
	ctx, span := tr.Start(ctx, "CreateClient")
	defer span.End()

	var created Client
	err := a.client.Create(ctx, "client", map[string]any{
		"name":  name,
		"phone": phone,
	}, &created)
	if err != nil {
		return nil, a.fail(ctx, "create_client", map[string]any{"name": name, "phone": phone}, traceFrom(ctx), err)
	}
	return &created, nil
}

// CreateBooking commits a reservation and, on success, invalidates every
// cached schedule listing before returning, since reservation counts change
// availability.
func (a *Adapter) CreateBooking(ctx context.Context, clientID, scheduleID int64) (*Reservation, error) {
	tr := otel.Tracer("crm/Adapter")
	ctx, span := tr.Start(ctx, "CreateBooking",
		trace.WithAttributes(
			attribute.Int64("client.id", clientID),
			attribute.Int64("schedule.id", scheduleID),
		),
	)
	defer span.End()

	var created Reservation
	err := a.client.Create(ctx, "reservation", map[string]any{
		"client_id":   clientID,
		"schedule_id": scheduleID,
	}, &created)
	if err != nil {
		return nil, a.fail(ctx, "create_booking", map[string]any{
			"client_id": clientID, "schedule_id": scheduleID,
		}, traceFrom(ctx), err)
	}

	a.cache.InvalidateEntity(ctx, "schedule")
	return &created, nil
}

// ListBookings lists reservations, optionally filtered by client and start
// date.
func (a *Adapter) ListBookings(ctx context.Context, clientID int64, dateFrom string) ([]Reservation, error) {
	tr := otel.Tracer("crm/Adapter")
	ctx, span := tr.Start(ctx, "ListBookings")
	defer span.End()

	columns := map[string]any{}
	if clientID != 0 {
		columns["client_id"] = clientID
	}
	if dateFrom != "" {
		columns["date"] = dateFrom
	}
	var bookings []Reservation
	err := a.client.List(ctx, "reservation", ListRequest{
		Fields:  []string{"id", "client_id", "schedule_id", "status_id", "created_at", "updated_at", "notes"},
		Columns: columns,
	}, &bookings)
	if err != nil {
		return nil, a.fail(ctx, "list_bookings", map[string]any{
			"client_id": clientID, "date_from": dateFrom,
		}, traceFrom(ctx), err)
	}
	return bookings, nil
}

// CancelBooking deletes a reservation and invalidates the schedule cache on
// success.
func (a *Adapter) CancelBooking(ctx context.Context, reservationID int64) error {
	tr := otel.Tracer("crm/Adapter")
	ctx, span := tr.Start(ctx, "CancelBooking",
		trace.WithAttributes(attribute.Int64("reservation.id", reservationID)),
	)
	defer span.End()

	if err := a.client.Delete(ctx, "reservation", reservationID); err != nil {
		return a.fail(ctx, "cancel_booking", map[string]any{
			"reservation_id": reservationID,
		}, traceFrom(ctx), err)
	}

	a.cache.InvalidateEntity(ctx, "schedule")
	return nil
}

// HealthCheck probes the CRM. Used by the readiness endpoint; never
// enqueues fallback.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	return a.client.Health(ctx)
}

// Fallback exposes the queue for the operator surface and metrics.
func (a *Adapter) Fallback() *FallbackQueue { return a.fallback }

// BreakerState exposes the breaker state for metrics.
func (a *Adapter) BreakerState() string { return a.client.BreakerState() }

// traceFrom pulls the span's trace id for fallback records, keeping queue
// items correlatable with logs.
func traceFrom(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
