package session

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
)

// Event names emitted by Track and Consumer.
const (
	EventPause  = "pause"
	EventClosed = "closed"
)

// TrackPause is the payload of a track pause-changed event.
type TrackPause struct {
	Local  bool `json:"local"`
	Global bool `json:"global"`
	Wire   bool `json:"paused"`
}

// Track is one publication: a producer leg plus its consumer registry.
// The on-wire pause is the OR of two independently asserted flags, so the
// state machine is a product of booleans rather than a single enum.
type Track struct {
	ID    domain.TrackID
	Owner domain.ClientID
	Kind  domain.MediaKind

	Events *core.Emitter

	leg          core.ProducerLeg
	localPaused  bool
	globalPaused bool
	consumers    map[domain.ClientID]*Consumer
	closed       bool
	log          zerolog.Logger
}

func NewTrack(owner domain.ClientID, leg core.ProducerLeg) *Track {
	return &Track{
		ID:        leg.ID(),
		Owner:     owner,
		Kind:      leg.Kind(),
		Events:    core.NewEmitter(),
		leg:       leg,
		consumers: map[domain.ClientID]*Consumer{},
		log: log.With().Str("module", "session.track").
			Str("track", string(leg.ID())).Str("owner", string(owner)).Logger(),
	}
}

func (t *Track) WirePaused() bool   { return t.localPaused || t.globalPaused }
func (t *Track) LocalPaused() bool  { return t.localPaused }
func (t *Track) GlobalPaused() bool { return t.globalPaused }

// SetLocalPause asserts or clears the owner's own pause. It reports whether
// the on-wire state changed; a no-op toggle emits nothing.
func (t *Track) SetLocalPause(v bool) bool {
	return t.setPause(v, t.globalPaused)
}

// SetGlobalPause asserts or clears the room-policy pause. Authorization is
// enforced at the client layer, not here.
func (t *Track) SetGlobalPause(v bool) bool {
	return t.setPause(t.localPaused, v)
}

func (t *Track) setPause(local, global bool) bool {
	if t.closed {
		return false
	}
	before := t.WirePaused()
	t.localPaused = local
	t.globalPaused = global
	after := t.WirePaused()
	if after == before {
		return false
	}
	if after {
		t.leg.Pause()
	} else {
		t.leg.Resume()
	}
	for _, c := range t.consumers {
		c.SetProducerPause(after)
	}
	t.log.Debug().Bool("local", local).Bool("global", global).Bool("wire", after).Msg("pause changed")
	t.Events.Emit(EventPause, TrackPause{Local: local, Global: global, Wire: after})
	return true
}

// AddConsumer registers a subscriber. The owner never consumes its own
// track; that is rejected unconditionally.
func (t *Track) AddConsumer(c *Consumer) error {
	if t.closed {
		return ErrClosed
	}
	if c.Client == t.Owner {
		return ErrSelfConsume
	}
	if _, ok := t.consumers[c.Client]; ok {
		return ErrDuplicateClient
	}
	t.consumers[c.Client] = c
	// New subscribers mirror the producer's current on-wire state.
	c.SetProducerPause(t.WirePaused())
	return nil
}

func (t *Track) RemoveConsumer(client domain.ClientID) {
	delete(t.consumers, client)
}

func (t *Track) Consumer(client domain.ClientID) (*Consumer, bool) {
	c, ok := t.consumers[client]
	return c, ok
}

func (t *Track) Consumers() []*Consumer {
	out := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		out = append(out, c)
	}
	return out
}

// Close tears down the producer leg and every consumer referencing it.
func (t *Track) Close() {
	if t.closed {
		return
	}
	t.closed = true
	for client, c := range t.consumers {
		c.Close()
		delete(t.consumers, client)
	}
	t.leg.Close()
	t.log.Debug().Msg("track closed")
	t.Events.Emit(EventClosed, t.ID)
}
