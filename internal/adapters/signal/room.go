package signal

import (
	"context"
)

func (ctl *Controller) handleListMembers(ctx context.Context, c *wsConn, req request) {
	members, err := ctl.Orch.Members(ctx, c.room)
	if err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]any{
			"id":   m.ID,
			"name": m.Name,
			"role": m.Role,
		})
	}
	ctl.respond(c, req, map[string]any{"members": out})
}

func (ctl *Controller) handleEndRoom(ctx context.Context, c *wsConn, req request) {
	if err := ctl.Orch.EndRoom(ctx, c.room, c.client); err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, nil)
}

// handleLeave tears the caller's session down without waiting for the
// disconnect timer.
func (ctl *Controller) handleLeave(ctx context.Context, c *wsConn, req request) {
	if err := ctl.Orch.Disconnect(ctx, c.room, c.client); err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, nil)
	c.Close()
}
