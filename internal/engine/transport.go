package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
)

var ErrTransportClosed = errors.New("transport closed")

// transport wraps one PeerConnection against a router. Producing registers
// a relay that is fed once the matching remote track arrives; consuming
// attaches a local static RTP track driven by a relay's pump.
type transport struct {
	id     string
	pc     *webrtc.PeerConnection
	router *router
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  map[webrtc.RTPCodecType][]*relay // produced, awaiting remote track
	onClosed func()
	closed   bool

	log zerolog.Logger
}

func newTransport(parent context.Context, r *router) (*transport, error) {
	pc, err := r.api.NewPeerConnection(r.webrtcCfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	t := &transport{
		id:      uuid.NewString(),
		pc:      pc,
		router:  r,
		ctx:     ctx,
		cancel:  cancel,
		pending: map[webrtc.RTPCodecType][]*relay{},
	}
	t.log = log.With().Str("module", "engine.transport").Str("transport", t.id).Logger()

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		t.log.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.log.Info().Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			t.fireClosed()
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.log.Info().Str("kind", track.Kind().String()).Str("remote_id", track.ID()).Msg("remote track arrived")
		t.bindRemote(track)
	})
	return t, nil
}

func (t *transport) ID() string { return t.id }

// Connect applies the client's offer and answers with gathering complete,
// so the answer carries every local candidate.
func (t *transport) Connect(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t.pc.LocalDescription(), nil
}

func (t *transport) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(ci)
}

// bindRemote attaches an arrived remote track to the oldest relay produced
// for its kind.
func (t *transport) bindRemote(track *webrtc.TrackRemote) {
	kind := track.Kind()
	t.mu.Lock()
	queue := t.pending[kind]
	if len(queue) == 0 {
		t.mu.Unlock()
		t.log.Warn().Str("kind", kind.String()).Msg("remote track without a pending producer")
		return
	}
	rel := queue[0]
	t.pending[kind] = queue[1:]
	t.mu.Unlock()
	rel.attach(t.ctx, track)
}

func (t *transport) Produce(ctx context.Context, id domain.TrackID, kind domain.MediaKind) (core.ProducerLeg, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	codecType := webrtc.RTPCodecTypeAudio
	if kind == domain.KindVideo {
		codecType = webrtc.RTPCodecTypeVideo
	}
	rel := newRelay(id, codecType)
	t.pending[codecType] = append(t.pending[codecType], rel)
	t.mu.Unlock()

	t.router.publish(rel)
	return &producerLeg{relay: rel, kind: kind, transport: t}, nil
}

func (t *transport) Consume(ctx context.Context, id domain.ConsumerID, producer domain.TrackID) (core.ConsumerLeg, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	rel, ok := t.router.lookup(producer)
	if !ok {
		return nil, ErrUnknownProducer
	}
	caps, ok := rel.codec()
	if !ok {
		// Source not attached yet; negotiate with the router's default for
		// the kind, which is in the fixed capability set either way.
		caps = defaultCapability(rel.kind)
	}
	local, err := webrtc.NewTrackLocalStaticRTP(caps, string(producer), "classmesh")
	if err != nil {
		return nil, err
	}
	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, err
	}
	ot := &outTrack{id: id, track: local, sender: sender}
	ot.setState(outPaused) // consumers start paused until resumed
	rel.addOut(ot)
	return &consumerLeg{id: id, out: ot, relay: rel, transport: t}, nil
}

func (t *transport) OnClosed(fn func()) {
	t.mu.Lock()
	t.onClosed = fn
	t.mu.Unlock()
}

func (t *transport) fireClosed() {
	t.mu.Lock()
	fn := t.onClosed
	t.onClosed = nil
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	if err := t.pc.Close(); err != nil {
		t.log.Error().Err(err).Msg("close error")
	}
}

type producerLeg struct {
	relay     *relay
	kind      domain.MediaKind
	transport *transport
}

func (p *producerLeg) ID() domain.TrackID     { return p.relay.id }
func (p *producerLeg) Kind() domain.MediaKind { return p.kind }
func (p *producerLeg) Pause()                 { p.relay.paused.Store(true) }
func (p *producerLeg) Resume()                { p.relay.paused.Store(false) }

func (p *producerLeg) Close() {
	p.relay.close()
	p.transport.router.unpublish(p.relay.id)
}

type consumerLeg struct {
	id        domain.ConsumerID
	out       *outTrack
	relay     *relay
	transport *transport
}

func (c *consumerLeg) ID() domain.ConsumerID { return c.id }

func (c *consumerLeg) Pause() {
	if c.out.getState() == outActive {
		c.out.setState(outPaused)
	}
}

func (c *consumerLeg) Resume() {
	if c.out.getState() == outPaused {
		c.out.setState(outActive)
	}
}

func (c *consumerLeg) Close() {
	c.out.setState(outClosed)
	c.relay.removeOut(c.id)
	if err := c.transport.pc.RemoveTrack(c.out.sender); err != nil {
		c.transport.log.Debug().Err(err).Str("consumer", string(c.id)).Msg("remove track")
	}
}
