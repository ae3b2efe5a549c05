package webrtc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

const sampleAudioSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 0 111\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

type fakeConn struct {
	local   *webrtc.SessionDescription
	remote  *webrtc.SessionDescription
	applied []string
	failOn  string
	closed  int
}

func (f *fakeConn) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sampleAudioSDP}, nil
}

func (f *fakeConn) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sampleAudioSDP}, nil
}

func (f *fakeConn) SetLocalDescription(d webrtc.SessionDescription) error {
	f.local = &d
	return nil
}

func (f *fakeConn) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.remote = &d
	return nil
}

func (f *fakeConn) LocalDescription() *webrtc.SessionDescription { return f.local }

func (f *fakeConn) AddICECandidate(c webrtc.ICECandidateInit) error {
	if f.remote == nil {
		return errors.New("remote description is not set")
	}
	if c.Candidate == f.failOn {
		return errors.New("bad candidate")
	}
	f.applied = append(f.applied, c.Candidate)
	return nil
}

func (f *fakeConn) Close() error { f.closed++; return nil }

func candidate(v string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"candidate":%q}`, v))
}

func TestCandidatesWaitForRemoteDescription(t *testing.T) {
	conn := &fakeConn{}
	p := NewPeer(conn, logger.Default())

	for _, c := range []string{"c1", "c2", "c3"} {
		if err := p.AddCandidate(candidate(c)); err != nil {
			t.Fatalf("queueing shouldn't fail: %v", err)
		}
	}
	if len(conn.applied) != 0 {
		t.Fatalf("no candidate may be applied before the description, got %v", conn.applied)
	}

	if err := p.SetRemote(webrtc.SDPTypeAnswer, sampleAudioSDP); err != nil {
		t.Fatalf("set remote fail: %v", err)
	}
	want := []string{"c1", "c2", "c3"}
	if len(conn.applied) != len(want) {
		t.Fatalf("expected the whole queue flushed, got %v", conn.applied)
	}
	for i, c := range want {
		if conn.applied[i] != c {
			t.Errorf("candidate %v out of order: got %v, want %v", i, conn.applied[i], c)
		}
	}

	// after the flush candidates go straight through
	if err := p.AddCandidate(candidate("c4")); err != nil {
		t.Fatalf("direct apply fail: %v", err)
	}
	if conn.applied[len(conn.applied)-1] != "c4" {
		t.Errorf("expected c4 applied immediately")
	}
}

func TestFlushSurvivesBadCandidate(t *testing.T) {
	conn := &fakeConn{failOn: "c2"}
	p := NewPeer(conn, logger.Default())

	_ = p.AddCandidate(candidate("c1"))
	_ = p.AddCandidate(candidate("c2"))
	_ = p.AddCandidate(candidate("c3"))
	if err := p.SetRemote(webrtc.SDPTypeAnswer, sampleAudioSDP); err != nil {
		t.Fatalf("set remote fail: %v", err)
	}
	if len(conn.applied) != 2 || conn.applied[0] != "c1" || conn.applied[1] != "c3" {
		t.Errorf("one bad candidate shouldn't kill the flush, got %v", conn.applied)
	}
}

func TestOfferRewritesCodecOrder(t *testing.T) {
	conn := &fakeConn{}
	p := NewPeer(conn, logger.Default())

	sdp, err := p.Offer(false)
	if err != nil {
		t.Fatalf("offer fail: %v", err)
	}
	// the local description stays untouched, only the wire copy is rewritten
	if conn.local == nil || conn.local.SDP != sampleAudioSDP {
		t.Fatalf("the original offer must be the local description")
	}
	if !containsLine(sdp, "m=audio 9 UDP/TLS/RTP/SAVPF 111 0") {
		t.Errorf("expected opus first in the audio formats, got:\n%v", sdp)
	}
}

func TestBadCandidatePayload(t *testing.T) {
	p := NewPeer(&fakeConn{}, logger.Default())
	if err := p.AddCandidate(json.RawMessage(`"***"`)); err == nil {
		t.Errorf("expected a decode error")
	}
}

func TestRestartCounter(t *testing.T) {
	p := NewPeer(&fakeConn{}, logger.Default())
	if p.NextRestart() != 1 || p.NextRestart() != 2 {
		t.Errorf("restart counter broken")
	}
	p.ResetRestarts()
	if p.Restarts() != 0 {
		t.Errorf("expected a reset counter, got %v", p.Restarts())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	p := NewPeer(conn, logger.Default())
	p.Close()
	p.Close()
	if conn.closed != 1 {
		t.Errorf("expected a single close, got %v", conn.closed)
	}
	if !p.Closed() {
		t.Errorf("expected the closed flag set")
	}
}
