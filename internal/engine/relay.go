package engine

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/domain"
)

type outState int32

const (
	outActive outState = iota
	outPaused
	outClosed
)

// outTrack is one subscriber leg fed by a relay.
type outTrack struct {
	id     domain.ConsumerID
	track  *webrtc.TrackLocalStaticRTP
	sender *webrtc.RTPSender
	state  atomic.Int32
}

func (ot *outTrack) getState() outState  { return outState(ot.state.Load()) }
func (ot *outTrack) setState(s outState) { ot.state.Store(int32(s)) }

// relay pumps RTP from one remote track to every subscriber leg. The source
// may attach after subscribers exist; packets only flow once it does.
type relay struct {
	id   domain.TrackID
	kind webrtc.RTPCodecType

	paused atomic.Bool // producer on-wire pause, gates all forwarding

	mu     sync.RWMutex
	src    *webrtc.TrackRemote
	outs   map[domain.ConsumerID]*outTrack
	cancel context.CancelFunc

	log zerolog.Logger
}

func newRelay(id domain.TrackID, kind webrtc.RTPCodecType) *relay {
	return &relay{
		id:   id,
		kind: kind,
		outs: map[domain.ConsumerID]*outTrack{},
		log:  log.With().Str("module", "engine.relay").Str("track", string(id)).Logger(),
	}
}

// attach binds the arrived remote track and starts the pump.
func (r *relay) attach(ctx context.Context, src *webrtc.TrackRemote) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.src != nil {
		r.mu.Unlock()
		cancel()
		r.log.Warn().Msg("source already attached, ignoring")
		return
	}
	r.src = src
	r.cancel = cancel
	r.mu.Unlock()
	go r.loop(ctx, src)
}

func (r *relay) codec() (webrtc.RTPCodecCapability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.src == nil {
		return webrtc.RTPCodecCapability{}, false
	}
	return r.src.Codec().RTPCodecCapability, true
}

func (r *relay) loop(ctx context.Context, src *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("relay ctx done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			r.log.Error().Err(err).Msg("relay read RTP error, stopping")
			return
		}
		if r.paused.Load() {
			continue
		}
		r.forward(pkt)
	}
}

func (r *relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	snapshot := make(map[domain.ConsumerID]*outTrack, len(r.outs))
	maps.Copy(snapshot, r.outs)
	r.mu.RUnlock()

	var dirty []domain.ConsumerID
	for id, ot := range snapshot {
		switch ot.getState() {
		case outClosed:
			dirty = append(dirty, id)
		case outPaused:
		case outActive:
			if err := ot.track.WriteRTP(pkt); err != nil {
				r.log.Error().Err(err).Str("consumer", string(id)).Msg("relay write RTP error, dropping leg")
				ot.setState(outClosed)
				dirty = append(dirty, id)
			}
		}
	}
	if len(dirty) > 0 {
		r.mu.Lock()
		for _, id := range dirty {
			delete(r.outs, id)
		}
		r.mu.Unlock()
	}
}

func (r *relay) addOut(ot *outTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs[ot.id] = ot
}

func (r *relay) removeOut(id domain.ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.outs, id)
}

func (r *relay) close() {
	r.mu.Lock()
	for _, ot := range r.outs {
		ot.setState(outClosed)
	}
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
