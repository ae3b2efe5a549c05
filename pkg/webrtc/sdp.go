package webrtc

import (
	"strings"

	"github.com/pion/sdp/v3"
)

// PreferOpus reorders the codec list of every audio media section so
// Opus payload types come first and get picked during negotiation.
// The relative order inside each group is preserved, non-audio
// sections are untouched.
func PreferOpus(raw string) (string, error) {
	desc := sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return "", err
	}
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media != "audio" {
			continue
		}
		opus := make(map[string]struct{})
		for _, a := range m.Attributes {
			if a.Key != "rtpmap" {
				continue
			}
			pt, codec, ok := strings.Cut(a.Value, " ")
			if ok && strings.HasPrefix(strings.ToLower(codec), "opus/") {
				opus[pt] = struct{}{}
			}
		}
		if len(opus) == 0 {
			continue
		}
		first := make([]string, 0, len(opus))
		rest := make([]string, 0, len(m.MediaName.Formats))
		for _, f := range m.MediaName.Formats {
			if _, ok := opus[f]; ok {
				first = append(first, f)
			} else {
				rest = append(rest, f)
			}
		}
		m.MediaName.Formats = append(first, rest...)
	}
	out, err := desc.Marshal()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
