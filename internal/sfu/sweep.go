package sfu

import (
	"context"
	"time"

	"github.com/classmesh/sfu/internal/session"
)

// RunIdleSweep periodically flips rooms whose client count dropped to zero
// from active to inactive. This gates accounting and telemetry only; the
// room lease is not released.
func (o *Orchestrator) RunIdleSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, r := range o.Rooms.Rooms() {
			room := r
			err := room.Queue.Do(ctx, "idleSweep", func() {
				if room.Active() && room.ClientCount() == 0 {
					room.SetActive(false)
					o.log.Info().Str("room", string(room.ID)).Msg("room idle")
				}
			})
			if err != nil && err != session.ErrClosed {
				o.log.Debug().Err(err).Str("room", string(room.ID)).Msg("idle sweep skipped")
			}
		}
	}
}
