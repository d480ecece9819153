package coord

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/metrics"
)

// Claimer runs the room-to-SFU assignment protocol: announce liveness,
// block on the shared claim queue, take leases with set-if-absent, announce
// the assignment on the room's stream and keep renewing. Losing a held
// lease means another instance may already be serving the room, so the only
// safe reaction is to stop the process.
type Claimer struct {
	Store core.LeaseStore
	SfuID domain.SfuID
	Addr  string

	LeaseTTL    time.Duration
	LivenessTTL time.Duration

	// OnAssigned is invoked from the claim loop when a lease is won.
	OnAssigned func(domain.RoomID)

	// Fatal terminates the process on split-brain conditions. Tests replace
	// it; the default exits.
	Fatal func(err error)

	log zerolog.Logger
}

func NewClaimer(store core.LeaseStore, id domain.SfuID, addr string, leaseTTL, livenessTTL time.Duration) *Claimer {
	return &Claimer{
		Store:       store,
		SfuID:       id,
		Addr:        addr,
		LeaseTTL:    leaseTTL,
		LivenessTTL: livenessTTL,
		Fatal: func(err error) {
			log.Error().Err(err).Msg("fatal coordination failure")
			os.Exit(1)
		},
		log: log.With().Str("module", "coord.claimer").Str("sfu", string(id)).Logger(),
	}
}

// Run blocks until ctx is done. It spawns the liveness heartbeat and one
// renewal loop per claimed room.
func (c *Claimer) Run(ctx context.Context) {
	go c.heartbeat(ctx)
	c.claimLoop(ctx)
}

// heartbeat republishes the instance's status key at half the TTL so peer
// discovery can filter out stale instances.
func (c *Claimer) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.LivenessTTL / 2)
	defer ticker.Stop()
	for {
		if err := c.Store.RegisterLiveness(ctx, c.SfuID, c.Addr, c.LivenessTTL); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Msg("liveness registration failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Claimer) claimLoop(ctx context.Context) {
	for {
		room, err := c.Store.NextClaim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("claim pop failed, retrying")
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		ok, err := c.Store.AcquireLease(ctx, room, c.Addr, c.LeaseTTL)
		if err != nil {
			c.log.Warn().Err(err).Str("room", string(room)).Msg("lease acquire failed")
			continue
		}
		if !ok {
			// Another instance already serves the room; back to waiting
			// with no side effects.
			c.log.Debug().Str("room", string(room)).Msg("lease held elsewhere")
			continue
		}

		metrics.RoomsClaimed.Inc()
		c.log.Info().Str("room", string(room)).Msg("room claimed")
		if err := c.Store.AnnounceAssignment(ctx, room, c.SfuID, c.Addr); err != nil {
			c.log.Warn().Err(err).Str("room", string(room)).Msg("assignment announce failed")
		}
		if c.OnAssigned != nil {
			c.OnAssigned(room)
		}
		go c.renewLoop(ctx, room)
	}
}

// renewLoop refreshes the lease every half TTL and verifies the read-back.
// A diverging holder means this instance missed its renewal deadline and
// the room has a new owner; continuing would risk two SFUs serving one
// room, so the process terminates.
func (c *Claimer) renewLoop(ctx context.Context, room domain.RoomID) {
	ticker := time.NewTicker(c.LeaseTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		holder, err := c.Store.RenewLease(ctx, room, c.Addr, c.LeaseTTL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.LeaseRenewals.WithLabelValues("error").Inc()
			c.log.Warn().Err(err).Str("room", string(room)).Msg("lease renew failed")
			continue
		}
		if holder != c.Addr {
			metrics.LeaseRenewals.WithLabelValues("lost").Inc()
			c.Fatal(&LeaseLostError{Room: room, Holder: holder, Own: c.Addr})
			return
		}
		metrics.LeaseRenewals.WithLabelValues("ok").Inc()
	}
}

// LeaseLostError reports a lease whose holder no longer matches this
// instance after a renewal attempt.
type LeaseLostError struct {
	Room   domain.RoomID
	Holder string
	Own    string
}

func (e *LeaseLostError) Error() string {
	return "room lease lost: room " + string(e.Room) + " now held by " + e.Holder + ", not " + e.Own
}
