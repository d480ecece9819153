package core

import (
	"context"
	"time"

	"github.com/classmesh/sfu/internal/domain"
)

// LeaseStore is the port to the shared coordination store used by the
// room-claim protocol. Multiple SFU processes are true external concurrent
// actors here, so atomic conditional writes are the only primitive.
type LeaseStore interface {
	// NextClaim blocks until a room id is popped from the shared claim queue.
	NextClaim(ctx context.Context) (domain.RoomID, error)
	// AcquireLease does a set-if-absent of addr on the room's lease key.
	// It reports false, nil when another instance already holds the lease.
	AcquireLease(ctx context.Context, room domain.RoomID, addr string, ttl time.Duration) (bool, error)
	// RenewLease refreshes the lease only if it still exists and returns the
	// holder address read back after the attempt.
	RenewLease(ctx context.Context, room domain.RoomID, addr string, ttl time.Duration) (string, error)
	// AnnounceAssignment appends an entry to the room's capped change stream.
	AnnounceAssignment(ctx context.Context, room domain.RoomID, sfu domain.SfuID, addr string) error
	// RegisterLiveness refreshes this instance's status key and its entry in
	// the shared liveness set.
	RegisterLiveness(ctx context.Context, sfu domain.SfuID, addr string, ttl time.Duration) error
}

// MuteStore persists room-wide mute policy independently of any client's
// transport lifetime.
type MuteStore interface {
	SetGlobalMute(ctx context.Context, room domain.RoomID, st domain.GlobalMute) error
	// GetGlobalMute returns the zero value when nothing is persisted.
	GetGlobalMute(ctx context.Context, room domain.RoomID) (domain.GlobalMute, error)
}

// TrackEntry is the externally published description of one live track.
type TrackEntry struct {
	TrackID      domain.TrackID
	ProducerID   domain.ClientID
	SfuID        domain.SfuID
	Kind         domain.MediaKind
	PausedForAll bool
}

// TrackRegistrar publishes track existence for cross-process discovery.
// Every operation is best-effort: implementations log failures and never
// propagate them.
type TrackRegistrar interface {
	PublishTrack(ctx context.Context, room domain.RoomID, entry TrackEntry)
	RemoveTrack(ctx context.Context, room domain.RoomID, id domain.TrackID)
}
