package api

import "github.com/goccy/go-json"

type SignalType string

const (
	SigJoin         SignalType = "join"
	SigRequestState SignalType = "request-state"
	SigSDP          SignalType = "sdp"
	SigICE          SignalType = "ice"
	SigPeerJoined   SignalType = "peer-joined"
	SigPeerLeft     SignalType = "peer-left"
	SigWelcome      SignalType = "welcome"
)

// Head is the first-pass view of a signal payload.
type Head struct {
	Type SignalType `json:"type"`
}

type Join struct {
	Type      SignalType `json:"type"`
	SessionId string     `json:"sessionId"`
	Role      Role       `json:"role"`
}

type RequestState struct {
	Type      SignalType `json:"type"`
	SessionId string     `json:"sessionId,omitempty"`
}

type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

type SDP struct {
	Type    SignalType `json:"type"`
	SdpType SDPType    `json:"sdpType"`
	Sdp     string     `json:"sdp"`
	Addressing
	From string `json:"from,omitempty"`
}

type ICE struct {
	Type      SignalType      `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
	Addressing
	From string `json:"from,omitempty"`
}

// PeerJoined notifies the opposite role group that a participant
// has joined the sender's session.
type PeerJoined struct {
	Type SignalType `json:"type"`
	From string     `json:"from"`
	Role Role       `json:"role"`
}

type PeerLeft struct {
	Type SignalType `json:"type"`
	From string     `json:"from"`
	Role Role       `json:"role"`
}

// Welcome assigns the connection its identity right after the
// transport opens.
type Welcome struct {
	Type SignalType `json:"type"`
	Id   string     `json:"id"`
}

func NewJoin(sessionId string, role Role) Join {
	return Join{Type: SigJoin, SessionId: sessionId, Role: role}
}

func NewRequestState(sessionId string) RequestState {
	return RequestState{Type: SigRequestState, SessionId: sessionId}
}

func NewOffer(sdp string, addr Addressing) SDP {
	return SDP{Type: SigSDP, SdpType: SDPOffer, Sdp: sdp, Addressing: addr}
}

func NewAnswer(sdp string, addr Addressing) SDP {
	return SDP{Type: SigSDP, SdpType: SDPAnswer, Sdp: sdp, Addressing: addr}
}

func NewICE(candidate json.RawMessage, addr Addressing) ICE {
	return ICE{Type: SigICE, Candidate: candidate, Addressing: addr}
}

func NewPeerJoined(from string, role Role) PeerJoined {
	return PeerJoined{Type: SigPeerJoined, From: from, Role: role}
}

func NewPeerLeft(from string, role Role) PeerLeft {
	return PeerLeft{Type: SigPeerLeft, From: from, Role: role}
}

func NewWelcome(id string) Welcome { return Welcome{Type: SigWelcome, Id: id} }
