package session

import "errors"

var (
	ErrSelfConsume      = errors.New("track owner cannot consume its own track")
	ErrDuplicateClient  = errors.New("consumer for this client already exists")
	ErrNoCapabilities   = errors.New("capabilities not exchanged")
	ErrTrackNotFound    = errors.New("track not found")
	ErrConsumerNotFound = errors.New("consumer not found")
	ErrClientNotFound   = errors.New("client not found")
	ErrNoTransport      = errors.New("transport not created")
	ErrClosed           = errors.New("closed")
)
