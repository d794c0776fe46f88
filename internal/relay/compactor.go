package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// maxCompactChannels bounds one compaction sweep.
const maxCompactChannels = 10000

// Compactor periodically removes processed messages from every catalogued
// channel, independently of permission checks.
type Compactor struct {
	registry *Registry
	guard    *Guard
	interval time.Duration
	logger   zerolog.Logger
}

// NewCompactor creates a compactor. interval <= 0 disables it.
func NewCompactor(registry *Registry, guard *Guard, interval time.Duration, logger zerolog.Logger) *Compactor {
	return &Compactor{
		registry: registry,
		guard:    guard,
		interval: interval,
		logger:   logger.With().Str("component", "compactor").Logger(),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (c *Compactor) Run(ctx context.Context) error {
	if c.interval <= 0 {
		c.logger.Info().Msg("background compaction disabled")
		return nil
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil {
				c.logger.Error().Err(err).Msg("compaction sweep failed")
			}
		}
	}
}

// RunOnce compacts every catalogued channel once and returns the number of
// removed rows. Per-channel failures are logged and skipped.
func (c *Compactor) RunOnce(ctx context.Context) (int64, error) {
	names, err := c.registry.List(ctx, maxCompactChannels)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		n, err := c.guard.Compact(ctx, name)
		if err != nil {
			c.logger.Warn().Err(err).Str("channel", name).Msg("channel compaction failed")
			continue
		}
		total += n
	}

	if total > 0 {
		c.logger.Info().Int("channels", len(names)).Int64("rows", total).Msg("compaction sweep completed")
	}
	return total, nil
}
