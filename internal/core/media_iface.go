package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/classmesh/sfu/internal/domain"
)

// MediaEngine is the narrow port to the media-plane implementation. The
// session layer only negotiates and flips pause state through it; RTP,
// DTLS and ICE stay entirely behind these interfaces.
type MediaEngine interface {
	// NewRouter creates an isolated routing context with the engine's fixed
	// codec capability set.
	NewRouter(ctx context.Context) (Router, error)
}

// Router is one media-routing context. Producers published on a router are
// consumable from it and from every router it has been piped to.
type Router interface {
	CreateTransport(ctx context.Context) (Transport, error)
	// PipeTo makes every producer published on this router, now and later,
	// consumable from dst. Piping the same pair twice is a no-op.
	PipeTo(dst Router) error
	Close()
}

// Transport is one bidirectional media leg between a participant and a
// router. Negotiation follows the client-offer/server-answer shape.
type Transport interface {
	ID() string
	// Connect applies the remote offer and returns the local answer with
	// ICE gathering complete.
	Connect(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	AddICECandidate(webrtc.ICECandidateInit) error
	// Produce registers an inbound media leg for the next remote track of
	// the given kind.
	Produce(ctx context.Context, id domain.TrackID, kind domain.MediaKind) (ProducerLeg, error)
	// Consume attaches an outbound media leg fed by the given producer.
	Consume(ctx context.Context, id domain.ConsumerID, producer domain.TrackID) (ConsumerLeg, error)
	// OnClosed sets a callback fired when the underlying connection dies.
	OnClosed(func())
	Close()
}

// ProducerLeg is the publish side of one track inside the engine.
type ProducerLeg interface {
	ID() domain.TrackID
	Kind() domain.MediaKind
	Pause()
	Resume()
	Close()
}

// ConsumerLeg is the subscribe side of one track inside the engine.
type ConsumerLeg interface {
	ID() domain.ConsumerID
	Pause()
	Resume()
	Close()
}
