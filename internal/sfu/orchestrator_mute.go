package sfu

import (
	"context"

	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/session"
)

// SetLocalPause pauses or resumes the caller's own leg: an owned track or a
// held consumer, resolved in that order.
func (o *Orchestrator) SetLocalPause(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, id string, paused bool) error {
	return o.do(ctx, roomID, "setLocalPause", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		if track, ok := c.Track(domain.TrackID(id)); ok {
			track.SetLocalPause(paused)
			return nil
		}
		if cons, ok := c.Consumer(domain.ConsumerID(id)); ok {
			cons.SetLocalPause(paused)
			return nil
		}
		return E(CodeNotFound, "no owned track or consumer %s", id)
	})
}

// SetGlobalPause asserts the room-policy pause on a track. Teacher only.
func (o *Orchestrator) SetGlobalPause(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, trackID domain.TrackID, paused bool) error {
	return o.do(ctx, roomID, "setGlobalPause", func(r *session.Room) error {
		c, err := o.client(r, clientID)
		if err != nil {
			return err
		}
		if err := requireTeacher(c); err != nil {
			return err
		}
		track, ok := r.Track(trackID)
		if !ok {
			return wrap(CodeNotFound, session.ErrTrackNotFound, "unknown track "+string(trackID))
		}
		track.SetGlobalPause(paused)
		return nil
	})
}

// Mute arbitrates self-mute against teacher-mute against room policy. The
// returned visibility is what the room effectively gets, not the raw
// flags; a request that cannot take effect under current constraints
// echoes the unchanged state.
func (o *Orchestrator) Mute(ctx context.Context, roomID domain.RoomID, requester, target domain.ClientID, req session.MuteRequest) (domain.Visibility, error) {
	var vis domain.Visibility
	err := o.do(ctx, roomID, "mute", func(r *session.Room) error {
		reqClient, err := o.client(r, requester)
		if err != nil {
			return err
		}
		tgt, err := o.client(r, target)
		if err != nil {
			return err
		}
		global := o.globalMute(ctx, roomID)
		switch {
		case requester == target:
			vis = tgt.ApplySelfMute(req, global)
		default:
			if err := requireTeacher(reqClient); err != nil {
				return err
			}
			vis = tgt.ApplyTeacherMute(req, global)
		}
		r.Broadcast(NotifyMuteChanged, map[string]any{"client": target, "visibility": vis}, "")
		return nil
	})
	return vis, err
}

// SetGlobalMute persists the room policy, then walks every non-teacher
// client applying the teacher-mute transition with the inverse of the
// flag, and announces the change to everyone including the requester.
func (o *Orchestrator) SetGlobalMute(ctx context.Context, roomID domain.RoomID, requester domain.ClientID, audio, video *bool) (domain.GlobalMute, error) {
	var state domain.GlobalMute
	err := o.do(ctx, roomID, "setGlobalMute", func(r *session.Room) error {
		reqClient, err := o.client(r, requester)
		if err != nil {
			return err
		}
		if err := requireTeacher(reqClient); err != nil {
			return err
		}

		state = o.globalMute(ctx, roomID)
		if audio != nil {
			state.Audio = *audio
		}
		if video != nil {
			state.Video = *video
		}
		if err := o.Mutes.SetGlobalMute(ctx, roomID, state); err != nil {
			// The in-room transition still applies; only persistence for
			// late joiners degraded.
			o.log.Error().Err(err).Str("room", string(roomID)).Msg("global mute persist failed")
		}

		var muteReq session.MuteRequest
		if audio != nil {
			v := !state.Audio
			muteReq.Audio = &v
		}
		if video != nil {
			v := !state.Video
			muteReq.Video = &v
		}
		for _, c := range r.Clients() {
			if c.IsTeacher() {
				continue
			}
			c.ApplyTeacherMute(muteReq, state)
		}
		r.Broadcast(NotifyGlobalMuteChanged, state, "")
		return nil
	})
	return state, err
}

// GetGlobalMute reads the persisted flags; absent means unmuted.
func (o *Orchestrator) GetGlobalMute(ctx context.Context, roomID domain.RoomID) (domain.GlobalMute, error) {
	st, err := o.Mutes.GetGlobalMute(ctx, roomID)
	if err != nil {
		return domain.GlobalMute{}, wrap(CodeInternal, err, "global mute read")
	}
	return st, nil
}
