package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
)

// Room event names.
const (
	EventEmpty      = "empty"
	EventRoomClosed = "room-closed"
)

// Room is one class session: the client registry, the track index and the
// serialized task queue that gives all of it a consistent total order.
// Every method below must run inside Queue; the orchestrator is the only
// caller and honors that.
type Room struct {
	ID    domain.RoomID
	SfuID domain.SfuID
	Queue *TaskQueue

	Events *core.Emitter

	clients map[domain.ClientID]*Client
	tracks  map[domain.TrackID]*Track
	active  bool
	closed  bool
	log     zerolog.Logger
}

func NewRoom(id domain.RoomID, sfu domain.SfuID, taskTimeout time.Duration) *Room {
	return &Room{
		ID:      id,
		SfuID:   sfu,
		Queue:   NewTaskQueue(id, taskTimeout),
		Events:  core.NewEmitter(),
		clients: map[domain.ClientID]*Client{},
		tracks:  map[domain.TrackID]*Track{},
		log:     log.With().Str("module", "session.room").Str("room", string(id)).Logger(),
	}
}

func (r *Room) AddClient(c *Client) {
	r.clients[c.ID] = c
	r.active = true
	r.log.Info().Str("client", string(c.ID)).Str("role", string(c.Participant.Role)).Msg("client added")
}

func (r *Room) Client(id domain.ClientID) (*Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

func (r *Room) Clients() []*Client {
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Room) ClientCount() int { return len(r.clients) }

func (r *Room) AddTrack(t *Track) { r.tracks[t.ID] = t }

func (r *Room) RemoveTrack(id domain.TrackID) { delete(r.tracks, id) }

func (r *Room) Track(id domain.TrackID) (*Track, bool) {
	t, ok := r.tracks[id]
	return t, ok
}

func (r *Room) Tracks() []*Track {
	out := make([]*Track, 0, len(r.tracks))
	for _, t := range r.tracks {
		out = append(out, t)
	}
	return out
}

// RemoveClient tears a client down completely: held consumers detach from
// their tracks, owned tracks close (cascading to every sibling's consumer
// of them), transports close, and the room emits when the last client left.
func (r *Room) RemoveClient(id domain.ClientID) {
	c, ok := r.clients[id]
	if !ok {
		return
	}

	for _, cons := range c.Consumers() {
		if t, ok := r.tracks[cons.TrackID]; ok {
			t.RemoveConsumer(id)
		}
		cons.Close()
		c.RemoveConsumer(cons.ID)
	}

	for _, t := range c.Tracks() {
		for _, cons := range t.Consumers() {
			if holder, ok := r.clients[cons.Client]; ok {
				holder.RemoveConsumer(cons.ID)
			}
		}
		t.Close()
		delete(r.tracks, t.ID)
		c.RemoveTrack(t.ID)
	}

	c.CloseTransports()
	delete(r.clients, id)
	r.log.Info().Str("client", string(id)).Int("remaining", len(r.clients)).Msg("client removed")

	if len(r.clients) == 0 {
		r.Events.Emit(EventEmpty, r.ID)
	}
}

// Broadcast pushes an event to every client except the given one; pass an
// empty id to reach everyone.
func (r *Room) Broadcast(event string, payload any, except domain.ClientID) {
	for id, c := range r.clients {
		if id == except {
			continue
		}
		c.Notifier.Notify(event, payload)
	}
}

// Active reports whether the room currently counts as live for accounting.
// The idle sweep flips it off once the client count reaches zero.
func (r *Room) Active() bool     { return r.active }
func (r *Room) SetActive(v bool) { r.active = v }

// Close removes every client and stops the queue. The teardown runs as a
// queued task so it cannot interleave with in-flight room work; only the
// queue shutdown itself happens outside.
func (r *Room) Close() {
	_ = r.Queue.Do(context.Background(), "close", func() {
		if r.closed {
			return
		}
		r.closed = true
		for id := range r.clients {
			r.RemoveClient(id)
		}
		r.Events.Emit(EventRoomClosed, r.ID)
	})
	r.Queue.Close()
	r.log.Info().Msg("room closed")
}
