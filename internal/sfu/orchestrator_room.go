package sfu

import (
	"context"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/metrics"
	"github.com/classmesh/sfu/internal/session"
)

// Connect creates the client session for a participant's first signaling
// contact. Worker assignment happens here, once, with independent
// least-loaded picks per side; a pool that cannot serve a side makes
// client creation fail outright.
func (o *Orchestrator) Connect(ctx context.Context, roomID domain.RoomID, p *domain.Participant, notifier core.Notifier) (*session.Client, error) {
	_, existed := o.Rooms.Get(roomID)
	r := o.Rooms.GetOrCreate(roomID)
	if !existed {
		metrics.ActiveRooms.Inc()
		o.log.Info().Str("room", string(roomID)).Msg("room created")
	}

	pw, err := o.Workers.PickProducer()
	if err != nil {
		return nil, wrap(CodeInternal, err, "no producer worker")
	}
	cw, err := o.Workers.PickConsumer()
	if err != nil {
		return nil, wrap(CodeInternal, err, "no consumer worker")
	}

	client := session.NewClient(p, roomID, notifier, pw, cw)
	taskErr := r.Queue.Do(ctx, "connect", func() {
		if existing, ok := r.Client(p.ID); ok {
			// Reconnect of a live session replaces the transport endpoint
			// but keeps the session state.
			existing.Notifier = notifier
			client = existing
			return
		}
		r.AddClient(client)
		metrics.ActiveClients.Inc()
		r.Broadcast(NotifyMemberJoined, p, p.ID)
	})
	if taskErr != nil {
		return nil, wrap(CodeInternal, taskErr, "room queue unavailable")
	}
	return client, nil
}

// Disconnect force-closes a client and everything it owns, and releases the
// room when the last client leaves.
func (o *Orchestrator) Disconnect(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID) error {
	var empty bool
	err := o.do(ctx, roomID, "disconnect", func(r *session.Room) error {
		c, ok := r.Client(clientID)
		if !ok {
			return nil
		}
		o.releaseClientResources(ctx, r, c)
		// Subscribers of the leaver's tracks lose their consumers in the
		// session cascade below; their worker capacity comes back here.
		for _, t := range c.Tracks() {
			for _, cons := range t.Consumers() {
				if cons.Client == clientID {
					continue
				}
				if holder, ok := r.Client(cons.Client); ok {
					holder.ConsumerWorker.DropConsumer()
					metrics.ActiveConsumers.Dec()
				}
			}
		}
		r.RemoveClient(clientID)
		metrics.ActiveClients.Dec()
		r.Broadcast(NotifyMemberLeft, c.Participant, clientID)
		empty = r.ClientCount() == 0
		return nil
	})
	if err != nil {
		return err
	}
	if empty {
		o.Rooms.Release(roomID)
		metrics.ActiveRooms.Dec()
		o.log.Info().Str("room", string(roomID)).Msg("room released, last client left")
	}
	return nil
}

// releaseClientResources returns worker capacity and retracts registrar
// entries before the session-level cascade runs.
func (o *Orchestrator) releaseClientResources(ctx context.Context, r *session.Room, c *session.Client) {
	for _, t := range c.Tracks() {
		o.Registrar.RemoveTrack(ctx, r.ID, t.ID)
		c.ProducerWorker.DropProducer()
		metrics.ActiveProducers.Dec()
	}
	for range c.Consumers() {
		c.ConsumerWorker.DropConsumer()
		metrics.ActiveConsumers.Dec()
	}
}

// EndRoom closes the whole room on a teacher's request.
func (o *Orchestrator) EndRoom(ctx context.Context, roomID domain.RoomID, requester domain.ClientID) error {
	err := o.do(ctx, roomID, "endRoom", func(r *session.Room) error {
		req, err := o.client(r, requester)
		if err != nil {
			return err
		}
		if err := requireTeacher(req); err != nil {
			return err
		}
		r.Broadcast(NotifyRoomEnded, map[string]any{"room": roomID}, "")
		for _, c := range r.Clients() {
			o.releaseClientResources(ctx, r, c)
			metrics.ActiveClients.Dec()
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.Rooms.Release(roomID)
	metrics.ActiveRooms.Dec()
	o.log.Info().Str("room", string(roomID)).Str("by", string(requester)).Msg("room ended")
	return nil
}

// Members snapshots the room roster.
func (o *Orchestrator) Members(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	var out []*domain.Participant
	err := o.do(ctx, roomID, "listMembers", func(r *session.Room) error {
		for _, c := range r.Clients() {
			out = append(out, c.Participant)
		}
		return nil
	})
	return out, err
}
