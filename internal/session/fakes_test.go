package session

import (
	"time"

	"github.com/classmesh/sfu/internal/domain"
)

const testTaskTimeout = 100 * time.Millisecond

// fakeProducerLeg records pause transitions instead of touching a real
// media engine.
type fakeProducerLeg struct {
	id     domain.TrackID
	kind   domain.MediaKind
	paused bool
	closed bool
	calls  []string
}

func newFakeProducerLeg(kind domain.MediaKind) *fakeProducerLeg {
	return &fakeProducerLeg{id: domain.NewTrackID(), kind: kind}
}

func (l *fakeProducerLeg) ID() domain.TrackID     { return l.id }
func (l *fakeProducerLeg) Kind() domain.MediaKind { return l.kind }
func (l *fakeProducerLeg) Pause()                 { l.paused = true; l.calls = append(l.calls, "pause") }
func (l *fakeProducerLeg) Resume()                { l.paused = false; l.calls = append(l.calls, "resume") }
func (l *fakeProducerLeg) Close()                 { l.closed = true; l.calls = append(l.calls, "close") }

type fakeConsumerLeg struct {
	id     domain.ConsumerID
	paused bool
	closed bool
	calls  []string
}

func newFakeConsumerLeg() *fakeConsumerLeg {
	return &fakeConsumerLeg{id: domain.NewConsumerID()}
}

func (l *fakeConsumerLeg) ID() domain.ConsumerID { return l.id }
func (l *fakeConsumerLeg) Pause()                { l.paused = true; l.calls = append(l.calls, "pause") }
func (l *fakeConsumerLeg) Resume()               { l.paused = false; l.calls = append(l.calls, "resume") }
func (l *fakeConsumerLeg) Close()                { l.closed = true; l.calls = append(l.calls, "close") }

func newTestTrack(owner domain.ClientID, kind domain.MediaKind) (*Track, *fakeProducerLeg) {
	leg := newFakeProducerLeg(kind)
	return NewTrack(owner, leg), leg
}

func newTestConsumer(client domain.ClientID, track domain.TrackID) (*Consumer, *fakeConsumerLeg) {
	leg := newFakeConsumerLeg()
	return NewConsumer(client, track, leg), leg
}
