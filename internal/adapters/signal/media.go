package signal

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/sfu"
)

type transportSide bool

const (
	sideProducer transportSide = true
	sideConsumer transportSide = false
)

func (ctl *Controller) handleCapabilities(ctx context.Context, c *wsConn, req request) {
	if err := ctl.Orch.SetCapabilities(ctx, c.room, c.client); err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, nil)
}

func (ctl *Controller) handleCreateTransport(ctx context.Context, c *wsConn, req request, side transportSide) {
	var id string
	var err error
	if side == sideProducer {
		id, err = ctl.Orch.CreateProducerTransport(ctx, c.room, c.client)
	} else {
		id, err = ctl.Orch.CreateConsumerTransport(ctx, c.room, c.client)
	}
	if err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, map[string]any{"transportId": id})
}

func (ctl *Controller) handleConnectTransport(ctx context.Context, c *wsConn, req request, side transportSide) {
	var body struct {
		Offer webrtc.SessionDescription `json:"offer"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed offer"))
		return
	}
	var answer *webrtc.SessionDescription
	var err error
	if side == sideProducer {
		answer, err = ctl.Orch.ConnectProducerTransport(ctx, c.room, c.client, body.Offer)
	} else {
		answer, err = ctl.Orch.ConnectConsumerTransport(ctx, c.room, c.client, body.Offer)
	}
	if err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, map[string]any{"answer": answer})
}

func (ctl *Controller) handleCandidate(ctx context.Context, c *wsConn, req request) {
	var body struct {
		Side      string                  `json:"side"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed candidate"))
		return
	}
	producerSide := body.Side != "consumer"
	if err := ctl.Orch.AddICECandidate(ctx, c.room, c.client, producerSide, body.Candidate); err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, nil)
}

func (ctl *Controller) handleCreateTrack(ctx context.Context, c *wsConn, req request) {
	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed request"))
		return
	}
	kind, err := domain.ParseMediaKind(body.Kind)
	if err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "%s", err.Error()))
		return
	}
	trackID, err := ctl.Orch.CreateTrack(ctx, c.room, c.client, kind)
	if err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, map[string]any{"trackId": trackID})
}

func (ctl *Controller) handleCloseTrack(ctx context.Context, c *wsConn, req request) {
	var body struct {
		TrackID domain.TrackID `json:"trackId"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed request"))
		return
	}
	if err := ctl.Orch.CloseTrack(ctx, c.room, c.client, body.TrackID); err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, nil)
}

func (ctl *Controller) handleCreateConsumer(ctx context.Context, c *wsConn, req request) {
	var body struct {
		ProducerID domain.TrackID `json:"producerId"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed request"))
		return
	}
	consumerID, err := ctl.Orch.CreateConsumer(ctx, c.room, c.client, body.ProducerID)
	if err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, map[string]any{"consumerId": consumerID, "producerId": body.ProducerID})
}

func (ctl *Controller) handleCloseConsumer(ctx context.Context, c *wsConn, req request) {
	var body struct {
		ConsumerID domain.ConsumerID `json:"consumerId"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		ctl.sendError(c, req.ID, sfu.E(sfu.CodeValidation, "malformed request"))
		return
	}
	if err := ctl.Orch.CloseConsumer(ctx, c.room, c.client, body.ConsumerID); err != nil {
		ctl.sendError(c, req.ID, err)
		return
	}
	ctl.respond(c, req, nil)
}
