package session

import (
	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
)

// ConsumerPause is the payload of a consumer pause event. Both components
// are carried so subscribers can tell an own-side pause from a mirrored
// producer pause.
type ConsumerPause struct {
	Local     bool `json:"local"`
	Producer  bool `json:"producer"`
	Effective bool `json:"paused"`
}

// Consumer is the subscribe-side leg of one track for one client. It
// mirrors the producer's on-wire pause unless the subscriber has asserted
// its own pause, in which case the local pause wins: a producer resume
// never overrides an explicit local pause.
type Consumer struct {
	ID      domain.ConsumerID
	TrackID domain.TrackID
	Client  domain.ClientID

	Events *core.Emitter

	leg            core.ConsumerLeg
	localPaused    bool
	producerPaused bool
	closed         bool
}

// NewConsumer starts locally paused; the subscriber resumes explicitly once
// its transport is ready to receive.
func NewConsumer(client domain.ClientID, track domain.TrackID, leg core.ConsumerLeg) *Consumer {
	return &Consumer{
		ID:          leg.ID(),
		TrackID:     track,
		Client:      client,
		Events:      core.NewEmitter(),
		leg:         leg,
		localPaused: true,
	}
}

func (c *Consumer) Effective() bool      { return c.localPaused || c.producerPaused }
func (c *Consumer) LocalPaused() bool    { return c.localPaused }
func (c *Consumer) ProducerPaused() bool { return c.producerPaused }

// SetLocalPause asserts or clears the subscriber's own pause.
func (c *Consumer) SetLocalPause(v bool) bool {
	if c.closed || c.localPaused == v {
		return false
	}
	before := c.Effective()
	c.localPaused = v
	c.applyAndEmit(before)
	return true
}

// SetProducerPause mirrors the producer's on-wire state onto this leg.
func (c *Consumer) SetProducerPause(v bool) bool {
	if c.closed || c.producerPaused == v {
		return false
	}
	before := c.Effective()
	c.producerPaused = v
	c.applyAndEmit(before)
	return true
}

func (c *Consumer) applyAndEmit(before bool) {
	if eff := c.Effective(); eff != before {
		if eff {
			c.leg.Pause()
		} else {
			c.leg.Resume()
		}
	}
	c.Events.Emit(EventPause, ConsumerPause{
		Local:     c.localPaused,
		Producer:  c.producerPaused,
		Effective: c.Effective(),
	})
}

func (c *Consumer) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.leg.Close()
	c.Events.Emit(EventClosed, c.ID)
}
