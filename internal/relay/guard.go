package relay

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/ironpulse/internal/metrics"
	"github.com/eldtechnologies/ironpulse/internal/store"
)

// Guard checks channel membership.
type Guard struct {
	db     store.Store
	logger zerolog.Logger
}

// NewGuard creates a permission guard.
func NewGuard(db store.Store, logger zerolog.Logger) *Guard {
	return &Guard{db: db, logger: logger.With().Str("component", "guard").Logger()}
}

// Check reports whether clientID is registered on channel. Whatever the
// result, it also deletes the channel's processed messages; a failure of
// that step is only logged. A lookup error counts as not permitted.
func (g *Guard) Check(ctx context.Context, channel, clientID string) bool {
	allowed := false
	row, err := g.db.SelectOne(ctx, permissionCollection(channel), []string{"client_id"}, store.Where{"client_id": clientID})
	switch {
	case err != nil:
		g.logger.Error().Err(err).Str("channel", channel).Msg("permission lookup failed")
	case row != nil:
		allowed = true
	}

	if _, err := g.Compact(ctx, channel); err != nil {
		g.logger.Warn().Err(err).Str("channel", channel).Msg("compaction failed")
	}

	return allowed
}

// Compact deletes processed messages of channel and returns how many rows
// were removed. Unprocessed rows are never touched.
func (g *Guard) Compact(ctx context.Context, channel string) (int64, error) {
	n, err := g.db.DeleteRows(ctx, channel, store.Where{"processed": true})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.CompactedRows.Add(float64(n))
		g.logger.Debug().Str("channel", channel).Int64("rows", n).Msg("compacted processed messages")
	}
	return n, nil
}
