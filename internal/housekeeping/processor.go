package housekeeping

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper removes records that are no longer needed
type Sweeper interface {
	PurgeExpiredKeys(ctx context.Context) (int64, error)
}

type Processor struct {
	sweeper  Sweeper
	interval time.Duration // Time between sweeps
}

func NewProcessor(sweeper Sweeper, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Processor{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start runs a sweep immediately and then on every tick until ctx is done
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "housekeeping_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting housekeeping processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down housekeeping processor")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Processor) sweep(ctx context.Context) {
	logger := log.With().Str("component", "housekeeping_processor").Logger()

	purged, err := p.sweeper.PurgeExpiredKeys(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error().Err(err).Msg("failed to purge expired idempotency keys")
		}
		return
	}
	if purged > 0 {
		logger.Info().Int64("purged", purged).Msg("purged expired idempotency keys")
	}
}
