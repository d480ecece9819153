// Package coord implements the distributed room-assignment protocol and the
// external-state publishers over a shared Redis keyspace.
package coord

import (
	"fmt"

	"github.com/classmesh/sfu/internal/domain"
)

// Key schema. Everything the cluster shares lives under these keys; the
// only concurrency primitives used against them are atomic conditional
// writes, since peer SFU processes are true concurrent actors.
const (
	// claimQueueKey is the shared FIFO of room ids waiting for an owner.
	claimQueueKey = "sfu:claims"
	// livenessKey is a sorted set of SFU ids scored by last-seen unix time.
	livenessKey = "sfu:alive"
	// assignStreamMaxLen caps each room's assignment-change stream.
	assignStreamMaxLen = 64
)

func statusKey(id domain.SfuID) string { return fmt.Sprintf("sfu:%s:status", id) }

func leaseKey(room domain.RoomID) string { return fmt.Sprintf("room:%s:sfu", room) }

func assignStreamKey(room domain.RoomID) string { return fmt.Sprintf("room:%s:assignments", room) }

func muteKey(room domain.RoomID) string { return fmt.Sprintf("room:%s:mute", room) }

func trackKey(room domain.RoomID, track domain.TrackID) string {
	return fmt.Sprintf("room:%s:track:%s", room, track)
}
