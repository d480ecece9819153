// Package domain contains entities without logic, just meta-data.
package domain

import "github.com/google/uuid"

// Branded identifier types. Keeping them distinct stops a ClientID from
// sneaking into a map keyed by TrackID at compile time.
type (
	RoomID     string
	ClientID   string
	TrackID    string
	ConsumerID string
	SfuID      string
	WorkerID   string
)

func NewRoomID() RoomID         { return RoomID(uuid.NewString()) }
func NewClientID() ClientID     { return ClientID(uuid.NewString()) }
func NewTrackID() TrackID       { return TrackID(uuid.NewString()) }
func NewConsumerID() ConsumerID { return ConsumerID(uuid.NewString()) }
func NewSfuID() SfuID           { return SfuID("sfu-" + uuid.NewString()[:8]) }
func NewWorkerID() WorkerID     { return WorkerID("worker-" + uuid.NewString()[:8]) }
