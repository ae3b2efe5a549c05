package api

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestTwoPassUnwrap(t *testing.T) {
	raw := []byte(`{"c":"/signal","p":{"type":"join","sessionId":"abc123","role":"student"}}`)
	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		t.Fatal(err)
	}
	if in.Channel != Signal {
		t.Fatalf("channel = %v", in.Channel)
	}
	var head Head
	if err := json.Unmarshal(in.Payload, &head); err != nil {
		t.Fatal(err)
	}
	if head.Type != SigJoin {
		t.Fatalf("type = %v", head.Type)
	}
	var join Join
	if err := json.Unmarshal(in.Payload, &join); err != nil {
		t.Fatal(err)
	}
	if join.SessionId != "abc123" || join.Role != RoleStudent {
		t.Fatalf("join = %+v", join)
	}
}

func TestAddressingInline(t *testing.T) {
	offer := NewOffer("v=0", Addressing{Recipient: ToStudents, TargetSocketId: "s1"})
	b, err := json.Marshal(offer)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["recipient"] != "students" || m["targetSocketId"] != "s1" {
		t.Fatalf("addressing not inlined: %v", m)
	}
	if _, ok := m["from"]; ok {
		t.Fatal("empty from should be omitted")
	}
}

func TestAvatarKind(t *testing.T) {
	pitch := 0.5
	tests := []struct {
		name string
		u    AvatarUpdate
		want AvatarKind
	}{
		{"pose", AvatarUpdate{Pitch: &pitch}, AvatarPose},
		{"photo", AvatarUpdate{Photo: json.RawMessage(`"data"`), W: 64, H: 64}, AvatarPhoto},
		{"landmarks", AvatarUpdate{Landmarks: json.RawMessage(`[[1,2]]`)}, AvatarLandmarks},
		{"photo wins over landmarks", AvatarUpdate{
			Photo:     json.RawMessage(`"data"`),
			Landmarks: json.RawMessage(`[[1,2]]`),
		}, AvatarPhoto},
		{"none", AvatarUpdate{}, AvatarNone},
	}
	for _, tc := range tests {
		if got := tc.u.Kind(); got != tc.want {
			t.Errorf("%s: kind = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPhotoOnlyStripsLandmarks(t *testing.T) {
	u := AvatarUpdate{
		Photo:     json.RawMessage(`"data"`),
		W:         320,
		H:         240,
		Landmarks: json.RawMessage(`[[1,2]]`),
	}
	got := u.PhotoOnly()
	if len(got.Landmarks) != 0 {
		t.Fatal("landmarks should not be replayed with the photo")
	}
	if got.W != 320 || got.H != 240 || len(got.Photo) == 0 {
		t.Fatalf("photo payload lost: %+v", got)
	}
}
