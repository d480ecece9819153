package sfu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/session"
	"github.com/classmesh/sfu/internal/worker"
)

type fixture struct {
	orch      *Orchestrator
	registrar *memRegistrar
	mutes     *memMuteStore
	room      domain.RoomID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool, err := worker.NewPool(context.Background(), fakeEngine{}, 1, 1, 0)
	require.NoError(t, err)
	reg := newMemRegistrar()
	mutes := newMemMuteStore()
	orch := NewOrchestrator("sfu-test", session.NewManager("sfu-test", testTaskTimeout), pool, mutes, reg)
	return &fixture{orch: orch, registrar: reg, mutes: mutes, room: "room-1"}
}

// join connects a participant and walks it through the full media setup:
// capabilities, both transports, connected.
func (f *fixture) join(t *testing.T, id domain.ClientID, role domain.Role) *recNotifier {
	t.Helper()
	ctx := context.Background()
	p, err := domain.NewParticipant(id, "user-"+string(id), role)
	require.NoError(t, err)
	n := &recNotifier{}
	_, err = f.orch.Connect(ctx, f.room, p, n)
	require.NoError(t, err)
	require.NoError(t, f.orch.SetCapabilities(ctx, f.room, id))
	_, err = f.orch.CreateProducerTransport(ctx, f.room, id)
	require.NoError(t, err)
	_, err = f.orch.CreateConsumerTransport(ctx, f.room, id)
	require.NoError(t, err)
	return n
}

func (f *fixture) publish(t *testing.T, id domain.ClientID, kind domain.MediaKind) domain.TrackID {
	t.Helper()
	trackID, err := f.orch.CreateTrack(context.Background(), f.room, id, kind)
	require.NoError(t, err)
	return trackID
}

func TestPublishAndSubscribeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.join(t, "teacher", domain.RoleTeacher)
	studentN := f.join(t, "student", domain.RoleStudent)

	trackID := f.publish(t, "teacher", domain.KindVideo)

	consumerID, err := f.orch.CreateConsumer(ctx, f.room, "student", trackID)
	require.NoError(t, err)

	r, ok := f.orch.Rooms.Get(f.room)
	require.True(t, ok)
	var cons *session.Consumer
	_ = r.Queue.Do(ctx, "inspect", func() {
		c, _ := r.Client("student")
		cons, _ = c.Consumer(consumerID)
	})
	require.NotNil(t, cons)

	// Fresh subscriptions deliver nothing until the subscriber resumes.
	assert.True(t, cons.Effective())

	require.NoError(t, f.orch.SetLocalPause(ctx, f.room, "student", string(consumerID), false))
	assert.False(t, cons.Effective())

	// The resume reached the student as a pause-state push.
	assert.GreaterOrEqual(t, studentN.count(NotifyPausedByProducer), 1)
}

func TestConsumerRequiresCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.join(t, "teacher", domain.RoleTeacher)
	trackID := f.publish(t, "teacher", domain.KindAudio)

	p, err := domain.NewParticipant("late", "late user", domain.RoleStudent)
	require.NoError(t, err)
	_, err = f.orch.Connect(ctx, f.room, p, &recNotifier{})
	require.NoError(t, err)
	_, err = f.orch.CreateConsumerTransport(ctx, f.room, "late")
	require.NoError(t, err)

	_, err = f.orch.CreateConsumer(ctx, f.room, "late", trackID)
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestOwnerCannotConsumeOwnTrack(t *testing.T) {
	f := newFixture(t)
	f.join(t, "teacher", domain.RoleTeacher)
	trackID := f.publish(t, "teacher", domain.KindVideo)

	_, err := f.orch.CreateConsumer(context.Background(), f.room, "teacher", trackID)
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestGlobalPauseNotifiesAndPropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	teacherN := f.join(t, "teacher", domain.RoleTeacher)
	studentN := f.join(t, "student", domain.RoleStudent)

	trackID := f.publish(t, "student", domain.KindVideo)
	_, err := f.orch.CreateConsumer(ctx, f.room, "teacher", trackID)
	require.NoError(t, err)

	require.NoError(t, f.orch.SetGlobalPause(ctx, f.room, "teacher", trackID, true))

	// Both the publisher and the subscriber hear it as a global pause.
	assert.GreaterOrEqual(t, studentN.count(NotifyPausedGlobally), 1)
	assert.GreaterOrEqual(t, teacherN.count(NotifyPausedGlobally), 1)

	entry, ok := f.registrar.entry(trackID)
	require.True(t, ok)
	assert.True(t, entry.PausedForAll)

	// Students cannot assert the room-policy pause.
	err = f.orch.SetGlobalPause(ctx, f.room, "student", trackID, false)
	require.Error(t, err)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))
}

func TestRegistrarUpdatesOutliveCreateRequest(t *testing.T) {
	f := newFixture(t)

	f.join(t, "teacher", domain.RoleTeacher)
	f.join(t, "student", domain.RoleStudent)

	// Publish under a request context that dies as soon as the call returns,
	// the way a signaling request context does.
	createCtx, cancel := context.WithCancel(context.Background())
	trackID, err := f.orch.CreateTrack(createCtx, f.room, "student", domain.KindVideo)
	require.NoError(t, err)
	cancel()

	require.NoError(t, f.orch.SetGlobalPause(context.Background(), f.room, "teacher", trackID, true))

	entry, ok := f.registrar.entry(trackID)
	require.True(t, ok)
	assert.True(t, entry.PausedForAll)

	// The pause republish and every later registrar call must not ride the
	// long-dead create context.
	errs := f.registrar.contextErrs()
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.NoError(t, e)
	}

	require.NoError(t, f.orch.CloseTrack(context.Background(), f.room, "student", trackID))
	_, ok = f.registrar.entry(trackID)
	assert.False(t, ok)
	for _, e := range f.registrar.contextErrs() {
		assert.NoError(t, e)
	}
}

func TestGlobalMuteForcesPauseAndBlocksSelfUnmute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.join(t, "teacher", domain.RoleTeacher)
	f.join(t, "student", domain.RoleStudent)
	f.publish(t, "student", domain.KindAudio)

	mute := true
	state, err := f.orch.SetGlobalMute(ctx, f.room, "teacher", &mute, nil)
	require.NoError(t, err)
	assert.True(t, state.Audio)

	r, _ := f.orch.Rooms.Get(f.room)
	var track *session.Track
	_ = r.Queue.Do(ctx, "inspect", func() {
		c, _ := r.Client("student")
		track = c.TracksOf(domain.KindAudio)[0]
	})
	assert.True(t, track.WirePaused())
	assert.True(t, track.GlobalPaused())

	// The student's unmute is swallowed while the policy stands.
	unmute := true
	vis, err := f.orch.Mute(ctx, f.room, "student", "student", session.MuteRequest{Audio: &unmute})
	require.NoError(t, err)
	assert.False(t, vis.Audio)
	assert.True(t, track.WirePaused())

	// Lifting the policy alone does not unmute; the forced self flag
	// requires the participant's own unmute.
	lift := false
	_, err = f.orch.SetGlobalMute(ctx, f.room, "teacher", &lift, nil)
	require.NoError(t, err)
	assert.True(t, track.WirePaused())

	vis, err = f.orch.Mute(ctx, f.room, "student", "student", session.MuteRequest{Audio: &unmute})
	require.NoError(t, err)
	assert.True(t, vis.Audio)
	assert.False(t, track.WirePaused())
}

func TestGlobalMutePersistsForLateJoiners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.join(t, "teacher", domain.RoleTeacher)
	mute := true
	_, err := f.orch.SetGlobalMute(ctx, f.room, "teacher", nil, &mute)
	require.NoError(t, err)

	// A publisher joining after the policy was set starts globally paused.
	f.join(t, "late", domain.RoleStudent)
	trackID := f.publish(t, "late", domain.KindVideo)

	entry, ok := f.registrar.entry(trackID)
	require.True(t, ok)
	assert.True(t, entry.PausedForAll)

	state, err := f.orch.GetGlobalMute(ctx, f.room)
	require.NoError(t, err)
	assert.True(t, state.Video)
}

func TestMuteOfOtherRequiresTeacher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.join(t, "teacher", domain.RoleTeacher)
	f.join(t, "alice", domain.RoleStudent)
	f.join(t, "bob", domain.RoleStudent)

	muted := false
	_, err := f.orch.Mute(ctx, f.room, "alice", "bob", session.MuteRequest{Audio: &muted})
	require.Error(t, err)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))

	vis, err := f.orch.Mute(ctx, f.room, "teacher", "bob", session.MuteRequest{Audio: &muted})
	require.NoError(t, err)
	assert.False(t, vis.Audio)
}

func TestDisconnectCascadesAndReleasesRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	teacherN := f.join(t, "teacher", domain.RoleTeacher)
	f.join(t, "student", domain.RoleStudent)
	trackID := f.publish(t, "student", domain.KindVideo)
	_, err := f.orch.CreateConsumer(ctx, f.room, "teacher", trackID)
	require.NoError(t, err)

	require.NoError(t, f.orch.Disconnect(ctx, f.room, "student"))

	// The publisher left: its track is retracted and the subscriber told.
	_, ok := f.registrar.entry(trackID)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, teacherN.count(NotifyMemberLeft), 1)

	r, ok := f.orch.Rooms.Get(f.room)
	require.True(t, ok)
	_ = r.Queue.Do(ctx, "inspect", func() {
		_, ok = r.Track(trackID)
	})
	assert.False(t, ok)

	require.NoError(t, f.orch.Disconnect(ctx, f.room, "teacher"))
	_, ok = f.orch.Rooms.Get(f.room)
	assert.False(t, ok, "room released after last client left")
}

func TestDisconnectReturnsSubscriberWorkerCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.join(t, "teacher", domain.RoleTeacher)
	f.join(t, "student", domain.RoleStudent)
	trackID := f.publish(t, "student", domain.KindVideo)
	_, err := f.orch.CreateConsumer(ctx, f.room, "teacher", trackID)
	require.NoError(t, err)

	r, ok := f.orch.Rooms.Get(f.room)
	require.True(t, ok)
	var teacher *session.Client
	require.NoError(t, r.Queue.Do(ctx, "inspect", func() {
		teacher, _ = r.Client("teacher")
	}))
	require.NotNil(t, teacher)
	require.EqualValues(t, 1, teacher.ConsumerWorker.ConsumerLoad())

	// The publisher leaving tears down the subscriber's consumer; the
	// subscriber's worker slot must come back with it.
	require.NoError(t, f.orch.Disconnect(ctx, f.room, "student"))
	assert.EqualValues(t, 0, teacher.ConsumerWorker.ConsumerLoad())
}

func TestEndRoomIsTeacherOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.join(t, "teacher", domain.RoleTeacher)
	studentN := f.join(t, "student", domain.RoleStudent)

	err := f.orch.EndRoom(ctx, f.room, "student")
	require.Error(t, err)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))
	_, ok := f.orch.Rooms.Get(f.room)
	require.True(t, ok, "failed end must not release the room")

	require.NoError(t, f.orch.EndRoom(ctx, f.room, "teacher"))
	assert.GreaterOrEqual(t, studentN.count(NotifyRoomEnded), 1)
	_, ok = f.orch.Rooms.Get(f.room)
	assert.False(t, ok)
}

func TestMembersSnapshot(t *testing.T) {
	f := newFixture(t)

	f.join(t, "teacher", domain.RoleTeacher)
	f.join(t, "student", domain.RoleStudent)

	members, err := f.orch.Members(context.Background(), f.room)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestReconnectKeepsSessionState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.join(t, "student", domain.RoleStudent)
	trackID := f.publish(t, "student", domain.KindAudio)

	p, err := domain.NewParticipant("student", "user-student", domain.RoleStudent)
	require.NoError(t, err)
	fresh := &recNotifier{}
	client, err := f.orch.Connect(ctx, f.room, p, fresh)
	require.NoError(t, err)

	// Same session object, new notification endpoint, publication intact.
	assert.Same(t, fresh, client.Notifier)
	_, ok := client.Track(trackID)
	assert.True(t, ok)
}
