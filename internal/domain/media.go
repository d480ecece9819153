package domain

import "errors"

var ErrUnknownKind = errors.New("unknown media kind")

// MediaKind is the kind of a published track.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case KindAudio:
		return KindAudio, nil
	case KindVideo:
		return KindVideo, nil
	}
	return "", ErrUnknownKind
}

// GlobalMute is the room-wide policy state. It is persisted outside the
// process and survives client churn.
type GlobalMute struct {
	Audio bool `json:"audioGloballyMuted"`
	Video bool `json:"videoGloballyDisabled"`
}

// Visibility is what the rest of the room effectively gets from one
// participant after every mute constraint is applied.
type Visibility struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}
