package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
)

var (
	ErrRouterClosed    = errors.New("router closed")
	ErrUnknownProducer = errors.New("unknown producer")
	ErrForeignRouter   = errors.New("cannot pipe to a router from another engine")
)

type router struct {
	api       *webrtc.API
	webrtcCfg webrtc.Configuration
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.RWMutex
	local  map[domain.TrackID]*relay // published on this router
	piped  map[domain.TrackID]*relay // imported from piped producer routers
	links  map[*router]struct{}      // pipe destinations
	closed bool

	log zerolog.Logger
}

func newRouter(parent context.Context, api *webrtc.API, cfg webrtc.Configuration) *router {
	ctx, cancel := context.WithCancel(parent)
	return &router{
		api:       api,
		webrtcCfg: cfg,
		ctx:       ctx,
		cancel:    cancel,
		local:     map[domain.TrackID]*relay{},
		piped:     map[domain.TrackID]*relay{},
		links:     map[*router]struct{}{},
		log:       log.With().Str("module", "engine.router").Logger(),
	}
}

func (r *router) CreateTransport(ctx context.Context) (core.Transport, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRouterClosed
	}
	return newTransport(r.ctx, r)
}

// PipeTo links this router to dst: every relay published here, now and
// later, becomes consumable from dst.
func (r *router) PipeTo(dst core.Router) error {
	other, ok := dst.(*router)
	if !ok {
		return ErrForeignRouter
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRouterClosed
	}
	if _, linked := r.links[other]; linked {
		r.mu.Unlock()
		return nil
	}
	r.links[other] = struct{}{}
	existing := make([]*relay, 0, len(r.local))
	for _, rel := range r.local {
		existing = append(existing, rel)
	}
	r.mu.Unlock()

	for _, rel := range existing {
		other.importRelay(rel)
	}
	return nil
}

func (r *router) publish(rel *relay) {
	r.mu.Lock()
	r.local[rel.id] = rel
	links := make([]*router, 0, len(r.links))
	for l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()
	for _, l := range links {
		l.importRelay(rel)
	}
}

func (r *router) unpublish(id domain.TrackID) {
	r.mu.Lock()
	delete(r.local, id)
	links := make([]*router, 0, len(r.links))
	for l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()
	for _, l := range links {
		l.dropRelay(id)
	}
}

func (r *router) importRelay(rel *relay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.piped[rel.id] = rel
}

func (r *router) dropRelay(id domain.TrackID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.piped, id)
}

func (r *router) lookup(id domain.TrackID) (*relay, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rel, ok := r.local[id]; ok {
		return rel, true
	}
	rel, ok := r.piped[id]
	return rel, ok
}

func (r *router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	relays := make([]*relay, 0, len(r.local))
	for _, rel := range r.local {
		relays = append(relays, rel)
	}
	r.mu.Unlock()
	for _, rel := range relays {
		rel.close()
	}
	r.cancel()
	r.log.Info().Msg("router closed")
}
