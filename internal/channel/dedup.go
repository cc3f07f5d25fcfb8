package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/store"
)

// dedupTTL is how long a delivered message id is remembered. Telegram
// retries webhooks well within this window.
const dedupTTL = 5 * time.Minute

// Deduper drops repeated webhook deliveries of the same message.
type Deduper struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewDeduper returns a Deduper over the shared store.
func NewDeduper(st *store.Store, logger zerolog.Logger) *Deduper {
	return &Deduper{store: st, logger: logger.With().Str("component", "dedup").Logger()}
}

// IsDuplicate reports whether this message id was already seen on the
// channel. A store failure counts as not-duplicate: processing a message
// twice beats silently dropping it.
func (d *Deduper) IsDuplicate(ctx context.Context, msg domain.InboundMessage) bool {
	key := fmt.Sprintf("seen:%s:%s", msg.Channel, msg.MessageID)
	isNew, err := d.store.SetNX(ctx, key, "1", dedupTTL)
	if err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("dedup check failed, letting message through")
		return false
	}
	return !isNew
}
