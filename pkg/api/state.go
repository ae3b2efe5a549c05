package api

import "github.com/goccy/go-json"

// BoardPatch is a rectangular board update. The image payload is opaque
// to the relay, it is cached verbatim and replayed to late joiners.
type BoardPatch struct {
	X     int             `json:"x"`
	Y     int             `json:"y"`
	W     int             `json:"w"`
	H     int             `json:"h"`
	Image json.RawMessage `json:"image"`
}

type AvatarKind uint8

const (
	AvatarNone AvatarKind = iota
	AvatarPose
	AvatarPhoto
	AvatarLandmarks
)

func (k AvatarKind) String() string {
	switch k {
	case AvatarPose:
		return "pose"
	case AvatarPhoto:
		return "photo"
	case AvatarLandmarks:
		return "landmarks"
	}
	return "none"
}

// AvatarUpdate is a union of the three avatar producer payloads:
// a pose (four numeric channels), a landmark set, or a photo.
// Exactly one kind is expected per message, detected by field presence.
type AvatarUpdate struct {
	Pitch     *float64        `json:"pitch,omitempty"`
	Yaw       *float64        `json:"yaw,omitempty"`
	Roll      *float64        `json:"roll,omitempty"`
	Mouth     *float64        `json:"mouth,omitempty"`
	Landmarks json.RawMessage `json:"landmarks,omitempty"`
	Photo     json.RawMessage `json:"photo,omitempty"`
	W         int             `json:"w,omitempty"`
	H         int             `json:"h,omitempty"`
}

func (a *AvatarUpdate) Kind() AvatarKind {
	switch {
	case len(a.Photo) > 0:
		return AvatarPhoto
	case len(a.Landmarks) > 0:
		return AvatarLandmarks
	case a.Pitch != nil || a.Yaw != nil || a.Roll != nil || a.Mouth != nil:
		return AvatarPose
	}
	return AvatarNone
}

// PhotoOnly strips landmark data from a photo update for replay.
func (a *AvatarUpdate) PhotoOnly() AvatarUpdate {
	return AvatarUpdate{Photo: a.Photo, W: a.W, H: a.H}
}
