// Package budget guards generation spend with four windowed counters in the
// key-value store: requests per minute, tokens per hour, cost per day, and
// errors per hour. The check-then-increment sequence is deliberately not
// atomic across concurrent callers; the limits mitigate cost and abuse, they
// are not hard safety invariants.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/store"
)

// Breach reasons reported by CheckAll.
const (
	ReasonRequestsPerMinute = "MAX_REQUESTS_PER_MINUTE exceeded"
	ReasonTokensPerHour     = "MAX_TOKENS_PER_HOUR exceeded"
	ReasonCostPerDay        = "MAX_COST_PER_DAY_USD exceeded"
)

// BreachError reports which budget limit rejected a pending generation call.
type BreachError struct {
	Reason  string
	Current int64
	Limit   int64
}

func (e *BreachError) Error() string {
	return fmt.Sprintf("budget breach: %s (current=%d limit=%d)", e.Reason, e.Current, e.Limit)
}

// Limits holds the configured maximums. CostPerDayUSD is in whole dollars;
// the counter itself tracks integer cents.
type Limits struct {
	RequestsPerMinute int64
	TokensPerHour     int64
	CostPerDayUSD     int64
	ErrorsPerHour     int64
}

// Guard implements the four counters on top of the store.
type Guard struct {
	store  *store.Store
	limits Limits
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithNow overrides the time source. Used by tests.
func WithNow(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard returns a Guard with the given limits.
func NewGuard(st *store.Store, limits Limits, logger zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{store: st, limits: limits, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bucket keys carry the window start so a new window is a new key even if
// the previous one has not been evicted yet.
func (g *Guard) minuteKey() string {
	t := g.now().UTC().Truncate(time.Minute)
	return "budget:requests:minute:" + t.Format(time.RFC3339)
}

func (g *Guard) hourKey() string {
	t := g.now().UTC().Truncate(time.Hour)
	return "budget:tokens:hour:" + t.Format(time.RFC3339)
}

func (g *Guard) dayKey() string {
	return "budget:cost:day:" + g.now().UTC().Format("2006-01-02")
}

func (g *Guard) errorsKey() string {
	t := g.now().UTC().Truncate(time.Hour)
	return "budget:errors:hour:" + t.Format(time.RFC3339)
}

func (g *Guard) current(ctx context.Context, key string) (int64, error) {
	val, err := g.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget counter %s holds %q: %w", key, val, err)
	}
	return n, nil
}

// checkAndIncrement reads the bucket, rejects if current+amount would exceed
// limit (refreshing the TTL so a stale bucket cannot linger), otherwise
// increments and re-applies the window TTL.
func (g *Guard) checkAndIncrement(ctx context.Context, key string, amount, limit int64, window time.Duration) (bool, int64, error) {
	current, err := g.current(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if current+amount > limit {
		if _, err := g.store.Expire(ctx, key, window); err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("budget ttl refresh failed")
		}
		return false, current, nil
	}
	newVal, err := g.store.IncrBy(ctx, key, amount)
	if err != nil {
		return false, current, err
	}
	if _, err := g.store.Expire(ctx, key, window); err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("budget ttl set failed")
	}
	return true, newVal, nil
}

// CheckRequestsPerMinute gates one more generation request this minute.
func (g *Guard) CheckRequestsPerMinute(ctx context.Context) (bool, int64, error) {
	return g.checkAndIncrement(ctx, g.minuteKey(), 1, g.limits.RequestsPerMinute, time.Minute)
}

// CheckTokensPerHour gates the estimated token count of a pending request.
func (g *Guard) CheckTokensPerHour(ctx context.Context, tokens int64) (bool, int64, error) {
	return g.checkAndIncrement(ctx, g.hourKey(), tokens, g.limits.TokensPerHour, time.Hour)
}

// CheckCostPerDay gates the estimated cost of a pending request. The counter
// is kept in integer cents; the configured maximum is whole dollars.
func (g *Guard) CheckCostPerDay(ctx context.Context, costCents int64) (bool, int64, error) {
	return g.checkAndIncrement(ctx, g.dayKey(), costCents, g.limits.CostPerDayUSD*100, 24*time.Hour)
}

// RecordError increments the error counter unconditionally and reports
// whether the hourly error limit still holds. The limit only gates future
// generation calls; the error itself is always recorded.
func (g *Guard) RecordError(ctx context.Context) (bool, error) {
	key := g.errorsKey()
	n, err := g.store.IncrBy(ctx, key, 1)
	if err != nil {
		return false, err
	}
	if _, err := g.store.Expire(ctx, key, time.Hour); err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("budget ttl set failed")
	}
	return n <= g.limits.ErrorsPerHour, nil
}

// CheckAll runs requests → tokens → cost in order and returns a BreachError
// for the first limit that rejects. Counters incremented before the breach
// are not rolled back.
func (g *Guard) CheckAll(ctx context.Context, tokens, costCents int64) error {
	ok, current, err := g.CheckRequestsPerMinute(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &BreachError{Reason: ReasonRequestsPerMinute, Current: current, Limit: g.limits.RequestsPerMinute}
	}

	ok, current, err = g.CheckTokensPerHour(ctx, tokens)
	if err != nil {
		return err
	}
	if !ok {
		return &BreachError{Reason: ReasonTokensPerHour, Current: current, Limit: g.limits.TokensPerHour}
	}

	ok, current, err = g.CheckCostPerDay(ctx, costCents)
	if err != nil {
		return err
	}
	if !ok {
		return &BreachError{Reason: ReasonCostPerDay, Current: current, Limit: g.limits.CostPerDayUSD * 100}
	}
	return nil
}

// IsBreached is a read-only snapshot across all four counters, for health
// and monitoring. It never increments.
func (g *Guard) IsBreached(ctx context.Context) (bool, error) {
	tokens, err := g.current(ctx, g.hourKey())
	if err != nil {
		return false, err
	}
	costCents, err := g.current(ctx, g.dayKey())
	if err != nil {
		return false, err
	}
	requests, err := g.current(ctx, g.minuteKey())
	if err != nil {
		return false, err
	}
	errs, err := g.current(ctx, g.errorsKey())
	if err != nil {
		return false, err
	}
	return tokens >= g.limits.TokensPerHour ||
		costCents >= g.limits.CostPerDayUSD*100 ||
		requests >= g.limits.RequestsPerMinute ||
		errs >= g.limits.ErrorsPerHour, nil
}
