package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically expires lapsed reservations so abandoned checkouts
// release their stock after the TTL.
type Sweeper struct {
	reservations *ReservationService
	interval     time.Duration
	batchLimit   int
	logger       zerolog.Logger
}

func NewSweeper(reservations *ReservationService, interval time.Duration, batchLimit int, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &Sweeper{
		reservations: reservations,
		interval:     interval,
		batchLimit:   batchLimit,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. Errors are
// logged and the loop keeps going.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Int("batch_limit", s.batchLimit).
		Msg("reservation sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reservation sweeper stopped")
			return
		case <-ticker.C:
			expired, err := s.reservations.ExpireSweep(ctx, s.batchLimit)
			if err != nil {
				s.logger.Error().Err(err).Msg("reservation sweep failed")
				continue
			}
			if expired > 0 {
				s.logger.Info().Int("expired", expired).Msg("expired lapsed reservations")
			}
		}
	}
}
