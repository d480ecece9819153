package session

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/worker"
)

// MuteFlags are the per-participant mute constraints, per kind. The
// teacher-imposed flags are independent of the participant's own: a teacher
// unmute only removes the teacher constraint and never clears a
// self-imposed mute.
type MuteFlags struct {
	SelfAudio    bool
	SelfVideo    bool
	TeacherAudio bool
	TeacherVideo bool
}

// MuteRequest carries desired visibility per kind; nil leaves a kind
// untouched. audio=false means "mute audio".
type MuteRequest struct {
	Audio *bool
	Video *bool
}

// Client is one participant's session: its transports, its producer and
// consumer registries and the mute decision state. All mutation runs inside
// the owning room's task queue, so there is no lock here.
type Client struct {
	ID          domain.ClientID
	RoomID      domain.RoomID
	Participant *domain.Participant
	Notifier    core.Notifier

	// Worker assignment happens once at creation and is immutable.
	ProducerWorker *worker.Worker
	ConsumerWorker *worker.Worker

	Mute MuteFlags

	producerTransport core.Transport
	consumerTransport core.Transport
	capsExchanged     bool
	tracks            map[domain.TrackID]*Track
	consumers         map[domain.ConsumerID]*Consumer
	closed            bool
	log               zerolog.Logger
}

func NewClient(p *domain.Participant, room domain.RoomID, notifier core.Notifier, pw, cw *worker.Worker) *Client {
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	return &Client{
		ID:             p.ID,
		RoomID:         room,
		Participant:    p,
		Notifier:       notifier,
		ProducerWorker: pw,
		ConsumerWorker: cw,
		tracks:         map[domain.TrackID]*Track{},
		consumers:      map[domain.ConsumerID]*Consumer{},
		log: log.With().Str("module", "session.client").
			Str("client", string(p.ID)).Str("room", string(room)).Logger(),
	}
}

func (c *Client) IsTeacher() bool { return c.Participant.IsTeacher() }
func (c *Client) Closed() bool    { return c.closed }

func (c *Client) SetCapabilities()      { c.capsExchanged = true }
func (c *Client) HasCapabilities() bool { return c.capsExchanged }

func (c *Client) SetProducerTransport(t core.Transport) { c.producerTransport = t }
func (c *Client) SetConsumerTransport(t core.Transport) { c.consumerTransport = t }

func (c *Client) ProducerTransport() (core.Transport, error) {
	if c.producerTransport == nil {
		return nil, ErrNoTransport
	}
	return c.producerTransport, nil
}

func (c *Client) ConsumerTransport() (core.Transport, error) {
	if c.consumerTransport == nil {
		return nil, ErrNoTransport
	}
	return c.consumerTransport, nil
}

func (c *Client) AddTrack(t *Track) { c.tracks[t.ID] = t }
func (c *Client) RemoveTrack(id domain.TrackID) {
	delete(c.tracks, id)
}

func (c *Client) Track(id domain.TrackID) (*Track, bool) {
	t, ok := c.tracks[id]
	return t, ok
}

func (c *Client) Tracks() []*Track {
	out := make([]*Track, 0, len(c.tracks))
	for _, t := range c.tracks {
		out = append(out, t)
	}
	return out
}

// TracksOf returns the owned tracks of one kind. Callers muting by kind use
// this when they do not know a concrete track id.
func (c *Client) TracksOf(kind domain.MediaKind) []*Track {
	var out []*Track
	for _, t := range c.tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (c *Client) AddConsumer(cons *Consumer) { c.consumers[cons.ID] = cons }
func (c *Client) RemoveConsumer(id domain.ConsumerID) {
	delete(c.consumers, id)
}

func (c *Client) Consumer(id domain.ConsumerID) (*Consumer, bool) {
	cons, ok := c.consumers[id]
	return cons, ok
}

func (c *Client) Consumers() []*Consumer {
	out := make([]*Consumer, 0, len(c.consumers))
	for _, cons := range c.consumers {
		out = append(out, cons)
	}
	return out
}

// Visibility is the AND of the three independent negations: not self-muted,
// not teacher-muted, not globally muted, per kind.
func (c *Client) Visibility(global domain.GlobalMute) domain.Visibility {
	return domain.Visibility{
		Audio: !c.Mute.SelfAudio && !c.Mute.TeacherAudio && !global.Audio,
		Video: !c.Mute.SelfVideo && !c.Mute.TeacherVideo && !global.Video,
	}
}

// ApplySelfMute handles the participant muting or unmuting itself. An
// unmute while a teacher or room-policy constraint is asserted is a no-op:
// the flags stay put and the current constrained state is returned.
func (c *Client) ApplySelfMute(req MuteRequest, global domain.GlobalMute) domain.Visibility {
	if req.Audio != nil {
		if !*req.Audio {
			c.Mute.SelfAudio = true
		} else if !c.Mute.TeacherAudio && !global.Audio {
			c.Mute.SelfAudio = false
		}
	}
	if req.Video != nil {
		if !*req.Video {
			c.Mute.SelfVideo = true
		} else if !c.Mute.TeacherVideo && !global.Video {
			c.Mute.SelfVideo = false
		}
	}
	c.applyMuteToTracks(global)
	return c.Visibility(global)
}

// ApplyTeacherMute handles a teacher muting another participant. Asserting
// a mute also forces the self flag on, so the target cannot override it;
// clearing only removes the teacher-imposed constraint.
func (c *Client) ApplyTeacherMute(req MuteRequest, global domain.GlobalMute) domain.Visibility {
	if req.Audio != nil {
		if !*req.Audio {
			c.Mute.TeacherAudio = true
			c.Mute.SelfAudio = true
		} else {
			c.Mute.TeacherAudio = false
		}
	}
	if req.Video != nil {
		if !*req.Video {
			c.Mute.TeacherVideo = true
			c.Mute.SelfVideo = true
		} else {
			c.Mute.TeacherVideo = false
		}
	}
	c.applyMuteToTracks(global)
	return c.Visibility(global)
}

// ApplyConstraints re-syncs every owned track with the current flag state,
// for tracks created while constraints were already in force.
func (c *Client) ApplyConstraints(global domain.GlobalMute) {
	c.applyMuteToTracks(global)
}

// applyMuteToTracks maps the flag state onto the two pause channels of every
// owned track. Self maps to the local channel, teacher and room policy to
// the global one; tracks only touch the transport when the OR changes.
func (c *Client) applyMuteToTracks(global domain.GlobalMute) {
	for _, t := range c.tracks {
		switch t.Kind {
		case domain.KindAudio:
			t.SetLocalPause(c.Mute.SelfAudio)
			t.SetGlobalPause(c.Mute.TeacherAudio || global.Audio)
		case domain.KindVideo:
			t.SetLocalPause(c.Mute.SelfVideo)
			t.SetGlobalPause(c.Mute.TeacherVideo || global.Video)
		}
	}
}

// CloseTransports tears down both media legs. Track and consumer cleanup is
// the room's job, since consumers of owned tracks live on sibling clients.
func (c *Client) CloseTransports() {
	if c.closed {
		return
	}
	c.closed = true
	if c.producerTransport != nil {
		c.producerTransport.Close()
		c.producerTransport = nil
	}
	if c.consumerTransport != nil {
		c.consumerTransport.Close()
		c.consumerTransport = nil
	}
	c.log.Debug().Msg("transports closed")
}
