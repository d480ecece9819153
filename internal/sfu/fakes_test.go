package sfu

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
)

const testTaskTimeout = 100 * time.Millisecond

// In-memory media fakes. Negotiation is pass-through; what matters for
// these tests is the pause/close call flow reaching the legs.

type fakeEngine struct{}

func (fakeEngine) NewRouter(ctx context.Context) (core.Router, error) {
	return &fakeRouter{pipes: map[core.Router]bool{}}, nil
}

type fakeRouter struct {
	pipes map[core.Router]bool
}

func (r *fakeRouter) CreateTransport(ctx context.Context) (core.Transport, error) {
	return newFakeTransport(), nil
}
func (r *fakeRouter) PipeTo(dst core.Router) error { r.pipes[dst] = true; return nil }
func (r *fakeRouter) Close()                       {}

type fakeTransport struct {
	id        string
	onClosed  func()
	producers []*fakeProducerLeg
	consumers []*fakeConsumerLeg
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{id: string(domain.NewWorkerID())}
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Connect(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: offer.SDP}, nil
}

func (t *fakeTransport) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (t *fakeTransport) Produce(ctx context.Context, id domain.TrackID, kind domain.MediaKind) (core.ProducerLeg, error) {
	leg := &fakeProducerLeg{id: id, kind: kind}
	t.producers = append(t.producers, leg)
	return leg, nil
}

func (t *fakeTransport) Consume(ctx context.Context, id domain.ConsumerID, producer domain.TrackID) (core.ConsumerLeg, error) {
	leg := &fakeConsumerLeg{id: id}
	t.consumers = append(t.consumers, leg)
	return leg, nil
}

func (t *fakeTransport) OnClosed(fn func()) { t.onClosed = fn }
func (t *fakeTransport) Close()             { t.closed = true }

type fakeProducerLeg struct {
	id     domain.TrackID
	kind   domain.MediaKind
	paused bool
	closed bool
}

func (l *fakeProducerLeg) ID() domain.TrackID     { return l.id }
func (l *fakeProducerLeg) Kind() domain.MediaKind { return l.kind }
func (l *fakeProducerLeg) Pause()                 { l.paused = true }
func (l *fakeProducerLeg) Resume()                { l.paused = false }
func (l *fakeProducerLeg) Close()                 { l.closed = true }

type fakeConsumerLeg struct {
	id     domain.ConsumerID
	paused bool
	closed bool
}

func (l *fakeConsumerLeg) ID() domain.ConsumerID { return l.id }
func (l *fakeConsumerLeg) Pause()                { l.paused = true }
func (l *fakeConsumerLeg) Resume()               { l.paused = false }
func (l *fakeConsumerLeg) Close()                { l.closed = true }

// memMuteStore keeps room policy in a map, like the Redis hash does.
type memMuteStore struct {
	mu    sync.Mutex
	state map[domain.RoomID]domain.GlobalMute
}

func newMemMuteStore() *memMuteStore {
	return &memMuteStore{state: map[domain.RoomID]domain.GlobalMute{}}
}

func (s *memMuteStore) SetGlobalMute(ctx context.Context, room domain.RoomID, st domain.GlobalMute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[room] = st
	return nil
}

func (s *memMuteStore) GetGlobalMute(ctx context.Context, room domain.RoomID) (domain.GlobalMute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[room], nil
}

type memRegistrar struct {
	mu      sync.Mutex
	entries map[domain.TrackID]core.TrackEntry
	ctxErrs []error
}

func newMemRegistrar() *memRegistrar {
	return &memRegistrar{entries: map[domain.TrackID]core.TrackEntry{}}
}

func (r *memRegistrar) PublishTrack(ctx context.Context, room domain.RoomID, e core.TrackEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.TrackID] = e
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
}

func (r *memRegistrar) RemoveTrack(ctx context.Context, room domain.RoomID, id domain.TrackID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
}

func (r *memRegistrar) contextErrs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.ctxErrs...)
}

func (r *memRegistrar) entry(id domain.TrackID) (core.TrackEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// recNotifier records pushed events per connection.
type recNotifier struct {
	mu     sync.Mutex
	events []recEvent
}

type recEvent struct {
	Event   string
	Payload any
}

func (n *recNotifier) Notify(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recEvent{Event: event, Payload: payload})
}

func (n *recNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Event == event {
			c++
		}
	}
	return c
}

func (n *recNotifier) last(event string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Event == event {
			return n.events[i].Payload, true
		}
	}
	return nil, false
}
