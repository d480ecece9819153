// Package sfu is the process-level orchestrator: it resolves rooms and
// clients, funnels every mutation through the owning room's task queue and
// talks to the coordination stores.
package sfu

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/session"
	"github.com/classmesh/sfu/internal/worker"
)

// Push notification names, shared with the signaling adapter.
const (
	NotifyPausedByProducer        = "pausedByProducingUser"
	NotifyPausedGlobally          = "pausedGlobally"
	NotifyConsumerClosed          = "consumerClosed"
	NotifyProducerClosed          = "producerClosed"
	NotifyConsumerTransportClosed = "consumerTransportClosed"
	NotifyProducerTransportClosed = "producerTransportClosed"
	NotifyMemberJoined            = "memberJoined"
	NotifyMemberLeft              = "memberLeft"
	NotifyMuteChanged             = "muteChanged"
	NotifyGlobalMuteChanged       = "globalMuteChanged"
	NotifyRoomEnded               = "roomEnded"
)

type Orchestrator struct {
	SfuID     domain.SfuID
	Rooms     *session.Manager
	Workers   *worker.Pool
	Mutes     core.MuteStore
	Registrar core.TrackRegistrar

	log zerolog.Logger
}

func NewOrchestrator(id domain.SfuID, rooms *session.Manager, workers *worker.Pool, mutes core.MuteStore, registrar core.TrackRegistrar) *Orchestrator {
	return &Orchestrator{
		SfuID:     id,
		Rooms:     rooms,
		Workers:   workers,
		Mutes:     mutes,
		Registrar: registrar,
		log:       log.With().Str("module", "sfu").Str("sfu", string(id)).Logger(),
	}
}

func (o *Orchestrator) room(id domain.RoomID) (*session.Room, error) {
	r, ok := o.Rooms.Get(id)
	if !ok {
		return nil, E(CodeNotFound, "unknown room %s", id)
	}
	return r, nil
}

// do runs fn inside the room's serialized queue and waits for it.
func (o *Orchestrator) do(ctx context.Context, room domain.RoomID, name string, fn func(r *session.Room) error) error {
	r, err := o.room(room)
	if err != nil {
		return err
	}
	var taskErr error
	if err := r.Queue.Do(ctx, name, func() { taskErr = fn(r) }); err != nil {
		return wrap(CodeInternal, err, "room queue unavailable")
	}
	return taskErr
}

func (o *Orchestrator) client(r *session.Room, id domain.ClientID) (*session.Client, error) {
	c, ok := r.Client(id)
	if !ok {
		return nil, wrap(CodeNotFound, session.ErrClientNotFound, "unknown client "+string(id))
	}
	return c, nil
}

// globalMute reads the persisted room policy; a store failure degrades to
// the unmuted default and is only logged, since the read is advisory for
// most paths.
func (o *Orchestrator) globalMute(ctx context.Context, room domain.RoomID) domain.GlobalMute {
	st, err := o.Mutes.GetGlobalMute(ctx, room)
	if err != nil {
		o.log.Warn().Err(err).Str("room", string(room)).Msg("global mute read failed")
		return domain.GlobalMute{}
	}
	return st
}
