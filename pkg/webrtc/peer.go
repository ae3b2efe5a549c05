package webrtc

import (
	"sync"

	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

// PeerConn is the negotiation slice of a pion peer connection used by
// Peer. *webrtc.PeerConnection satisfies it.
type PeerConn interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error
}

// Peer keeps the negotiation state of one remote peer: the connection
// handle, a FIFO of candidates that arrived before the remote
// description, and the restart attempt counter. Candidates are never
// applied before the description and never reordered.
type Peer struct {
	conn PeerConn
	log  *logger.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	restarts  int
	closed    bool
}

func NewPeer(conn PeerConn, log *logger.Logger) *Peer {
	return &Peer{conn: conn, log: log}
}

// Offer creates an offer, installs it as the local description and
// returns the signaling copy with the Opus preference applied.
func (p *Peer) Offer(iceRestart bool) (string, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := p.conn.CreateOffer(opts)
	if err != nil {
		return "", err
	}
	return p.installLocal(offer)
}

// Answer creates an answer, installs it as the local description and
// returns the signaling copy with the Opus preference applied.
func (p *Peer) Answer() (string, error) {
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return p.installLocal(answer)
}

// installLocal sets the untouched description locally (pion rejects a
// modified one) and rewrites only the copy that goes over the wire.
func (p *Peer) installLocal(desc webrtc.SessionDescription) (string, error) {
	if err := p.conn.SetLocalDescription(desc); err != nil {
		return "", err
	}
	rewritten, err := PreferOpus(desc.SDP)
	if err != nil {
		p.log.Warn().Err(err).Msg("opus rewrite skipped")
		return desc.SDP, nil
	}
	return rewritten, nil
}

// SetRemote applies the remote description and flushes the queued
// candidates in their arrival order. A candidate that fails to apply
// is logged and skipped, the rest of the queue still goes through.
func (p *Peer) SetRemote(kind webrtc.SDPType, sdp string) error {
	if err := p.conn.SetRemoteDescription(webrtc.SessionDescription{Type: kind, SDP: sdp}); err != nil {
		return err
	}
	p.mu.Lock()
	p.remoteSet = true
	queued := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, c := range queued {
		if err := p.conn.AddICECandidate(c); err != nil {
			p.log.Warn().Err(err).Msg("queued candidate dropped")
		}
	}
	if len(queued) > 0 {
		p.log.Debug().Msgf("flushed %v queued candidates", len(queued))
	}
	return nil
}

// AddCandidate queues the candidate while the remote description is
// missing, applies it right away otherwise.
func (p *Peer) AddCandidate(candidate json.RawMessage) error {
	var ice webrtc.ICECandidateInit
	if err := com.Unmarshal(candidate, &ice); err != nil {
		return err
	}
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, ice)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.conn.AddICECandidate(ice)
}

// Restarts counts the ICE restarts attempted since the last reset.
func (p *Peer) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

func (p *Peer) NextRestart() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarts++
	return p.restarts
}

func (p *Peer) ResetRestarts() {
	p.mu.Lock()
	p.restarts = 0
	p.mu.Unlock()
}

// Close tears the connection down, once.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	if err := p.conn.Close(); err != nil {
		p.log.Debug().Err(err).Msg("peer close")
	}
}

func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
