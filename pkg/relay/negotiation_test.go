package relay

import (
	"testing"

	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/caster"
	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/config"
	"github.com/chalkcast/chalkcast/pkg/listener"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/webrtc"
	"github.com/goccy/go-json"
)

// loopEnd is one participant wired straight into the hub: the hub
// sees it as a live sender, the orchestrator uses it as its signaler.
type loopEnd struct {
	h       *Hub
	id      string
	handler func(st api.SignalType, payload []byte)
}

func (e *loopEnd) Id() string          { return e.id }
func (e *loopEnd) Log() *logger.Logger { return logger.Default() }

func (e *loopEnd) Send(out api.Out) bool {
	if out.Channel != api.Signal {
		return true
	}
	payload, err := com.Marshal(out.Payload)
	if err != nil {
		return false
	}
	head := com.Unwrap[api.Head](payload)
	if head == nil {
		return false
	}
	if e.handler != nil {
		e.handler(head.Type, payload)
	}
	return true
}

func (e *loopEnd) send(payload any) bool {
	data, err := com.Marshal(api.Wrap(api.Signal, payload))
	if err != nil {
		return false
	}
	e.h.route(e, data)
	return true
}

func (e *loopEnd) SendOffer(sdp string, addr api.Addressing) bool {
	return e.send(api.NewOffer(sdp, addr))
}

func (e *loopEnd) SendAnswer(sdp string, addr api.Addressing) bool {
	return e.send(api.NewAnswer(sdp, addr))
}

func (e *loopEnd) SendICE(candidate json.RawMessage, addr api.Addressing) bool {
	return e.send(api.NewICE(candidate, addr))
}

func (e *loopEnd) join(sessionId string, role api.Role) bool {
	return e.send(api.NewJoin(sessionId, role))
}

// The full classroom handshake over the hub: the teacher joins, a
// student joins, peer-joined triggers an offer, the answer comes back
// annotated with the sender and both orchestrators end up holding a
// live negotiation.
func TestNegotiationEndToEnd(t *testing.T) {
	log := logger.Default()
	apiFactory, err := webrtc.NewApiFactory(config.Webrtc{}, log, nil)
	if err != nil {
		t.Fatalf("api factory fail: %v", err)
	}
	h := NewHub(log)
	teacher := &loopEnd{h: h, id: "t1"}
	student := &loopEnd{h: h, id: "s1"}
	h.senders.Register(teacher)
	h.senders.Register(student)

	cast := caster.New(teacher, apiFactory, webrtc.DefaultRetryPolicy(), webrtc.NewClock(), log)
	t.Cleanup(cast.Close)
	lsn := listener.New(student, apiFactory, webrtc.DefaultRetryPolicy(), webrtc.NewClock(), log)
	t.Cleanup(lsn.Close)

	var offerFrom, answerFrom string
	teacher.handler = func(st api.SignalType, p []byte) {
		switch st {
		case api.SigPeerJoined:
			if pj := com.Unwrap[api.PeerJoined](p); pj != nil && pj.Role == api.RoleStudent {
				_ = cast.AddStudent(pj.From)
			}
		case api.SigSDP:
			if sdp := com.Unwrap[api.SDP](p); sdp != nil && sdp.SdpType == api.SDPAnswer {
				answerFrom = sdp.From
				cast.HandleAnswer(sdp.From, sdp.Sdp)
			}
		case api.SigICE:
			if ice := com.Unwrap[api.ICE](p); ice != nil {
				cast.HandleIce(ice.From, ice.Candidate)
			}
		}
	}
	student.handler = func(st api.SignalType, p []byte) {
		switch st {
		case api.SigSDP:
			if sdp := com.Unwrap[api.SDP](p); sdp != nil && sdp.SdpType == api.SDPOffer {
				offerFrom = sdp.From
				lsn.HandleOffer(sdp.From, sdp.Sdp)
			}
		case api.SigICE:
			if ice := com.Unwrap[api.ICE](p); ice != nil {
				lsn.HandleIce(ice.From, ice.Candidate)
			}
		}
	}

	teacher.join("abc123", api.RoleTeacher)
	student.join("abc123", api.RoleStudent)

	if offerFrom != "t1" {
		t.Errorf("expected the offer annotated with the teacher id, got %q", offerFrom)
	}
	if answerFrom != "s1" {
		t.Errorf("expected the answer annotated with the student id, got %q", answerFrom)
	}
	if !lsn.Connected() {
		t.Errorf("expected the listener holding a live entry")
	}
	if cast.Len() != 1 {
		t.Errorf("expected one negotiated student, got %v", cast.Len())
	}
}
