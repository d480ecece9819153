package signal

import (
	"context"
	"encoding/json"

	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/session"
	"github.com/classmesh/sfu/internal/sfu"
)

func (ctl *Controller) handleSetLocalPause(ctx context.Context, c *wsConn, req request) {
	var body struct {
		ID     string `json:"id"`
		Paused bool   `json:"paused"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed request"))
		return
	}
	if err := ctl.Orch.SetLocalPause(ctx, c.room, c.client, body.ID, body.Paused); err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, nil)
}

func (ctl *Controller) handleSetGlobalPause(ctx context.Context, c *wsConn, req request) {
	var body struct {
		TrackID domain.TrackID `json:"trackId"`
		Paused  bool           `json:"paused"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed request"))
		return
	}
	if err := ctl.Orch.SetGlobalPause(ctx, c.room, c.client, body.TrackID, body.Paused); err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, nil)
}

// handleMute serves both self-mute and teacher mute-of-other: an absent
// target means the caller mutes itself.
func (ctl *Controller) handleMute(ctx context.Context, c *wsConn, req request) {
	var body struct {
		Target domain.ClientID `json:"target"`
		Audio  *bool           `json:"audio"`
		Video  *bool           `json:"video"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed request"))
		return
	}
	target := body.Target
	if target == "" {
		target = c.client
	}
	vis, err := ctl.Orch.Mute(ctx, c.room, c.client, target, session.MuteRequest{Audio: body.Audio, Video: body.Video})
	if err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, map[string]any{"target": target, "audio": vis.Audio, "video": vis.Video})
}

func (ctl *Controller) handleSetGlobalMute(ctx context.Context, c *wsConn, req request) {
	var body struct {
		Audio *bool `json:"audio"`
		Video *bool `json:"video"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed request"))
		return
	}
	state, err := ctl.Orch.SetGlobalMute(ctx, c.room, c.client, body.Audio, body.Video)
	if err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, state)
}

func (ctl *Controller) handleGetGlobalMute(ctx context.Context, c *wsConn, req request) {
	state, err := ctl.Orch.GetGlobalMute(ctx, c.room)
	if err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, state)
}
