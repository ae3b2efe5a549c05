package caster

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Source is the one local audio track shared by every student
// connection. It is acquired lazily on the first use and released
// once, when the whole caster shuts down.
type Source struct {
	mu    sync.Mutex
	track *webrtc.TrackLocalStaticSample
}

func NewSource() *Source { return &Source{} }

// Track returns the shared track, creating it on the first call.
func (s *Source) Track() (*webrtc.TrackLocalStaticSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track != nil {
		return s.track, nil
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "chalkcast")
	if err != nil {
		return nil, err
	}
	s.track = track
	return track, nil
}

func (s *Source) Acquired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track != nil
}

// Write pushes one encoded audio frame to every bound connection.
func (s *Source) Write(data []byte, duration time.Duration) error {
	s.mu.Lock()
	track := s.track
	s.mu.Unlock()
	if track == nil {
		return nil
	}
	return track.WriteSample(media.Sample{Data: data, Duration: duration})
}

// Release drops the track, the next Track call starts over.
func (s *Source) Release() {
	s.mu.Lock()
	s.track = nil
	s.mu.Unlock()
}
