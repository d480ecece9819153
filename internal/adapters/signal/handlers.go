package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// request is the correlation envelope: responses echo the caller's id.
type request struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type response struct {
	ID      string     `json:"id,omitempty"`
	Type    string     `json:"type"`
	OK      bool       `json:"ok"`
	Error   *errorBody `json:"error,omitempty"`
	Payload any        `json:"payload,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ctl *Controller) dispatch(c *wsConn, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendJSON(c, response{Type: "error", Error: &errorBody{Code: "validation", Message: "malformed request"}})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch req.Type {
	case "ping":
		ctl.sendJSON(c, response{ID: req.ID, Type: "pong", OK: true})
	case "capabilities":
		ctl.handleCapabilities(ctx, c, req)
	case "createProducerTransport":
		ctl.handleCreateTransport(ctx, c, req, sideProducer)
	case "connectProducerTransport":
		ctl.handleConnectTransport(ctx, c, req, sideProducer)
	case "createConsumerTransport":
		ctl.handleCreateTransport(ctx, c, req, sideConsumer)
	case "connectConsumerTransport":
		ctl.handleConnectTransport(ctx, c, req, sideConsumer)
	case "candidate":
		ctl.handleCandidate(ctx, c, req)
	case "createTrack":
		ctl.handleCreateTrack(ctx, c, req)
	case "closeTrack":
		ctl.handleCloseTrack(ctx, c, req)
	case "createConsumer":
		ctl.handleCreateConsumer(ctx, c, req)
	case "closeConsumer":
		ctl.handleCloseConsumer(ctx, c, req)
	case "setLocalPause":
		ctl.handleSetLocalPause(ctx, c, req)
	case "setGlobalPause":
		ctl.handleSetGlobalPause(ctx, c, req)
	case "mute":
		ctl.handleMute(ctx, c, req)
	case "setGlobalMute":
		ctl.handleSetGlobalMute(ctx, c, req)
	case "getGlobalMute":
		ctl.handleGetGlobalMute(ctx, c, req)
	case "listMembers":
		ctl.handleListMembers(ctx, c, req)
	case "endRoom":
		ctl.handleEndRoom(ctx, c, req)
	case "leave":
		ctl.handleLeave(ctx, c, req)
	default:
		log.Warn().Str("module", "signal").Str("type", req.Type).Msg("unknown signal")
		ctl.sendJSON(c, response{ID: req.ID, Type: "error", Error: &errorBody{Code: "validation", Message: "unknown request type " + req.Type}})
	}
}

func (ctl *Controller) respond(c *wsConn, req request, payload any) {
	ctl.sendJSON(c, response{ID: req.ID, Type: req.Type, OK: true, Payload: payload})
}
