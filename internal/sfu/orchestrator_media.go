package sfu

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/metrics"
	"github.com/classmesh/sfu/internal/session"
)

// SetCapabilities records that the client finished its RTP capability
// exchange. Consuming before this is rejected.
func (o *Orchestrator) SetCapabilities(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID) error {
	return o.do(ctx, roomID, "capabilities", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		c.SetCapabilities()
		return nil
	})
}

// CreateProducerTransport binds a new publish-side transport to the
// client's producer worker.
func (o *Orchestrator) CreateProducerTransport(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID) (string, error) {
	var id string
	err := o.do(ctx, roomID, "createProducerTransport", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		t, err := c.ProducerWorker.Router.CreateTransport(ctx)
		if err != nil {
			return wrap(CodeInternal, err, "create producer transport")
		}
		t.OnClosed(func() {
			o.onTransportClosed(roomID, clientID, NotifyProducerTransportClosed)
		})
		c.SetProducerTransport(t)
		id = t.ID()
		return nil
	})
	return id, err
}

func (o *Orchestrator) ConnectProducerTransport(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	var answer *webrtc.SessionDescription
	err := o.do(ctx, roomID, "connectProducerTransport", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		t, err := c.ProducerTransport()
		if err != nil {
			return wrap(CodeValidation, err, "producer transport not created")
		}
		answer, err = t.Connect(ctx, offer)
		if err != nil {
			return wrap(CodeInternal, err, "producer transport connect")
		}
		return nil
	})
	return answer, err
}

func (o *Orchestrator) CreateConsumerTransport(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID) (string, error) {
	var id string
	err := o.do(ctx, roomID, "createConsumerTransport", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		t, err := c.ConsumerWorker.Router.CreateTransport(ctx)
		if err != nil {
			return wrap(CodeInternal, err, "create consumer transport")
		}
		t.OnClosed(func() {
			o.onTransportClosed(roomID, clientID, NotifyConsumerTransportClosed)
		})
		c.SetConsumerTransport(t)
		id = t.ID()
		return nil
	})
	return id, err
}

func (o *Orchestrator) ConnectConsumerTransport(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	var answer *webrtc.SessionDescription
	err := o.do(ctx, roomID, "connectConsumerTransport", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		t, err := c.ConsumerTransport()
		if err != nil {
			return wrap(CodeValidation, err, "consumer transport not created")
		}
		answer, err = t.Connect(ctx, offer)
		if err != nil {
			return wrap(CodeInternal, err, "consumer transport connect")
		}
		return nil
	})
	return answer, err
}

// AddICECandidate forwards a trickled candidate to one of the client's
// transports. producerSide selects which.
func (o *Orchestrator) AddICECandidate(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, producerSide bool, candidate webrtc.ICECandidateInit) error {
	return o.do(ctx, roomID, "candidate", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		var t core.Transport
		if producerSide {
			t, err = c.ProducerTransport()
		} else {
			t, err = c.ConsumerTransport()
		}
		if err != nil {
			return wrap(CodeValidation, err, "transport not created")
		}
		if err := t.AddICECandidate(candidate); err != nil {
			return wrap(CodeInternal, err, "add ice candidate")
		}
		return nil
	})
}

// CreateTrack negotiates a new publication on the client's producer
// transport. The new track immediately honors the publisher's mute flags
// and the room's persisted global mute, pipes the producer worker to the
// dedicated consumer workers, and registers the track for discovery.
func (o *Orchestrator) CreateTrack(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, kind domain.MediaKind) (domain.TrackID, error) {
	var trackID domain.TrackID
	err := o.do(ctx, roomID, "createTrack", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		t, err := c.ProducerTransport()
		if err != nil {
			return wrap(CodeValidation, err, "producer transport not created")
		}
		leg, err := t.Produce(ctx, domain.NewTrackID(), kind)
		if err != nil {
			return wrap(CodeInternal, err, "produce")
		}
		track := session.NewTrack(clientID, leg)
		r.AddTrack(track)
		c.AddTrack(track)
		o.wireTrackEvents(r, track)

		if err := o.Workers.PipeToConsumers(c.ProducerWorker); err != nil {
			return wrap(CodeInternal, err, "pipe producer worker")
		}
		c.ProducerWorker.AddProducer()
		metrics.ActiveProducers.Inc()

		// A publisher joining under an active constraint starts paused.
		c.ApplyConstraints(o.globalMute(ctx, roomID))

		o.Registrar.PublishTrack(ctx, roomID, core.TrackEntry{
			TrackID:      track.ID,
			ProducerID:   clientID,
			SfuID:        o.SfuID,
			Kind:         track.Kind,
			PausedForAll: track.GlobalPaused(),
		})
		trackID = track.ID
		return nil
	})
	return trackID, err
}

// wireTrackEvents fans a track's pause changes out to the owner, to every
// consumer's client, and to the registrar, all within the queue turn that
// caused them. The handlers outlive the request that created the track, so
// registrar calls run on a fresh context, never the request's.
func (o *Orchestrator) wireTrackEvents(r *session.Room, track *session.Track) {
	track.Events.On(session.EventPause, func(payload any) {
		p, ok := payload.(session.TrackPause)
		if !ok {
			return
		}
		metrics.PauseTransitions.WithLabelValues("track").Inc()
		event := NotifyPausedByProducer
		if p.Global {
			event = NotifyPausedGlobally
		}
		notice := map[string]any{"track": track.ID, "paused": p.Wire, "local": p.Local, "global": p.Global}
		if owner, ok := r.Client(track.Owner); ok {
			owner.Notifier.Notify(event, notice)
		}
		for _, cons := range track.Consumers() {
			if holder, ok := r.Client(cons.Client); ok {
				holder.Notifier.Notify(event, notice)
			}
		}
		o.Registrar.PublishTrack(context.Background(), r.ID, core.TrackEntry{
			TrackID:      track.ID,
			ProducerID:   track.Owner,
			SfuID:        o.SfuID,
			Kind:         track.Kind,
			PausedForAll: track.GlobalPaused(),
		})
	})
	track.Events.On(session.EventClosed, func(any) {
		o.Registrar.RemoveTrack(context.Background(), r.ID, track.ID)
	})
}

// CreateConsumer attaches a subscriber leg for a known track. Requires the
// capability exchange to have happened; the track owner is rejected.
func (o *Orchestrator) CreateConsumer(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, producerID domain.TrackID) (domain.ConsumerID, error) {
	var consumerID domain.ConsumerID
	err := o.do(ctx, roomID, "createConsumer", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		if !c.HasCapabilities() {
			return wrap(CodeValidation, session.ErrNoCapabilities, "exchange capabilities before consuming")
		}
		track, ok := r.Track(producerID)
		if !ok {
			return wrap(CodeNotFound, session.ErrTrackNotFound, "unknown track "+string(producerID))
		}
		if track.Owner == clientID {
			return wrap(CodeValidation, session.ErrSelfConsume, "cannot consume own track")
		}
		t, err := c.ConsumerTransport()
		if err != nil {
			return wrap(CodeValidation, err, "consumer transport not created")
		}
		leg, err := t.Consume(ctx, domain.NewConsumerID(), track.ID)
		if err != nil {
			return wrap(CodeInternal, err, "consume")
		}
		cons := session.NewConsumer(clientID, track.ID, leg)
		o.wireConsumerEvents(r, cons)
		if err := track.AddConsumer(cons); err != nil {
			leg.Close()
			return wrap(CodeValidation, err, "add consumer")
		}
		c.AddConsumer(cons)
		c.ConsumerWorker.AddConsumer()
		metrics.ActiveConsumers.Inc()
		consumerID = cons.ID
		return nil
	})
	return consumerID, err
}

func (o *Orchestrator) wireConsumerEvents(r *session.Room, cons *session.Consumer) {
	cons.Events.On(session.EventPause, func(payload any) {
		p, ok := payload.(session.ConsumerPause)
		if !ok {
			return
		}
		metrics.PauseTransitions.WithLabelValues("consumer").Inc()
		if holder, ok := r.Client(cons.Client); ok {
			holder.Notifier.Notify(NotifyPausedByProducer, map[string]any{
				"consumer": cons.ID,
				"track":    cons.TrackID,
				"paused":   p.Effective,
				"local":    p.Local,
				"producer": p.Producer,
			})
		}
	})
	cons.Events.On(session.EventClosed, func(any) {
		if holder, ok := r.Client(cons.Client); ok {
			holder.Notifier.Notify(NotifyConsumerClosed, map[string]any{"consumer": cons.ID, "track": cons.TrackID})
		}
	})
}

// CloseTrack ends a publication on the owner's request, cascading to every
// consumer of it.
func (o *Orchestrator) CloseTrack(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, trackID domain.TrackID) error {
	return o.do(ctx, roomID, "closeTrack", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		track, ok := c.Track(trackID)
		if !ok {
			return wrap(CodeNotFound, session.ErrTrackNotFound, "unknown track "+string(trackID))
		}
		for _, cons := range track.Consumers() {
			if holder, ok := r.Client(cons.Client); ok {
				holder.RemoveConsumer(cons.ID)
				holder.ConsumerWorker.DropConsumer()
				metrics.ActiveConsumers.Dec()
				holder.Notifier.Notify(NotifyProducerClosed, map[string]any{"track": trackID})
			}
		}
		track.Close()
		r.RemoveTrack(trackID)
		c.RemoveTrack(trackID)
		c.ProducerWorker.DropProducer()
		metrics.ActiveProducers.Dec()
		return nil
	})
}

// CloseConsumer detaches one subscriber leg on its holder's request.
func (o *Orchestrator) CloseConsumer(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, consumerID domain.ConsumerID) error {
	return o.do(ctx, roomID, "closeConsumer", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		cons, ok := c.Consumer(consumerID)
		if !ok {
			return wrap(CodeNotFound, session.ErrConsumerNotFound, "unknown consumer "+string(consumerID))
		}
		if track, ok := r.Track(cons.TrackID); ok {
			track.RemoveConsumer(clientID)
		}
		cons.Close()
		c.RemoveConsumer(consumerID)
		c.ConsumerWorker.DropConsumer()
		metrics.ActiveConsumers.Dec()
		return nil
	})
}

// onTransportClosed runs off the engine's callback goroutine: it notifies
// the affected client through the room queue. Full session teardown stays
// with the disconnect timer.
func (o *Orchestrator) onTransportClosed(roomID domain.RoomID, clientID domain.ClientID, event string) {
	go func() {
		err := o.do(context.Background(), roomID, "transportClosed", func(r *session.Room) error {
			if c, ok := r.Client(clientID); ok {
				c.Notifier.Notify(event, map[string]any{"client": clientID})
			}
			return nil
		})
		if err != nil {
			o.log.Debug().Err(err).Str("room", string(roomID)).Msg("transport-closed notify skipped")
		}
	}()
}
