// Package listener is the receiver-side orchestrator: a single
// audio-only peer connection to the broadcaster, rebuilt on every new
// offer.
package listener

import (
	"sync"

	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/webrtc"
	"github.com/goccy/go-json"
	pion "github.com/pion/webrtc/v4"
)

// Signaler carries negotiation messages to the relay.
type Signaler interface {
	Id() string
	SendOffer(sdp string, addr api.Addressing) bool
	SendAnswer(sdp string, addr api.Addressing) bool
	SendICE(candidate json.RawMessage, addr api.Addressing) bool
}

type Listener struct {
	sig    Signaler
	api    *webrtc.ApiFactory
	policy webrtc.RetryPolicy
	clock  webrtc.Clock
	log    *logger.Logger

	// OnTrack receives the negotiated inbound audio.
	OnTrack func(track *pion.TrackRemote)

	mu     sync.Mutex
	cur    *entry
	stash  []json.RawMessage // candidates that beat the offer
	closed bool
}

type entry struct {
	from   string
	peer   *webrtc.Peer
	cancel func()
}

func New(sig Signaler, apiFactory *webrtc.ApiFactory, policy webrtc.RetryPolicy, clock webrtc.Clock, log *logger.Logger) *Listener {
	return &Listener{sig: sig, api: apiFactory, policy: policy, clock: clock, log: log}
}

func addrFor(from string) api.Addressing {
	return api.Addressing{Recipient: api.ToTeacher, TargetSocketId: from}
}

// HandleOffer replaces whatever connection existed with a fresh
// receive-only one, applies the offer, flushes the stashed
// candidates in arrival order and answers back at the sender.
func (l *Listener) HandleOffer(from, sdp string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	prev := l.cur
	l.cur = nil
	l.mu.Unlock()
	if prev != nil {
		l.discard(prev)
	}

	conn, err := l.api.NewPeer()
	if err != nil {
		l.log.Error().Err(err).Msg("peer create fail")
		return
	}
	if _, err = conn.AddTransceiverFromKind(pion.RTPCodecTypeAudio,
		pion.RTPTransceiverInit{Direction: pion.RTPTransceiverDirectionRecvonly}); err != nil {
		l.log.Error().Err(err).Msg("transceiver fail")
		_ = conn.Close()
		return
	}
	log := l.log.Extend(l.log.With().Str("peer", from))
	e := &entry{from: from, peer: webrtc.NewPeer(conn, log)}
	conn.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		log.Info().Msgf("track [%v]", track.Codec().MimeType)
		if l.OnTrack != nil {
			l.OnTrack(track)
		}
	})
	conn.OnICECandidate(func(ice *pion.ICECandidate) {
		if ice != nil {
			l.sendCandidate(from, ice)
		}
	})
	conn.OnConnectionStateChange(func(state pion.PeerConnectionState) { l.onState(e, state, log) })

	if err = e.peer.SetRemote(pion.SDPTypeOffer, sdp); err != nil {
		log.Error().Err(err).Msg("offer apply fail")
		e.peer.Close()
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		e.peer.Close()
		return
	}
	l.cur = e
	stash := l.stash
	l.stash = nil
	l.mu.Unlock()
	for _, c := range stash {
		if err := e.peer.AddCandidate(c); err != nil {
			log.Warn().Err(err).Msg("stashed candidate dropped")
		}
	}

	answer, err := e.peer.Answer()
	if err != nil {
		log.Error().Err(err).Msg("answer fail")
		return
	}
	l.sig.SendAnswer(answer, addrFor(from))
	log.Debug().Str(logger.DirectionField, "→").Msg("answer")
}

// HandleAnswer completes a renegotiation this side started.
func (l *Listener) HandleAnswer(from, sdp string) {
	e := l.entry()
	if e == nil || e.from != from {
		l.log.Debug().Msgf("answer from unexpected peer %v", from)
		return
	}
	if err := e.peer.SetRemote(pion.SDPTypeAnswer, sdp); err != nil {
		l.log.Error().Err(err).Msgf("answer from %v", from)
	}
}

// HandleIce queues or applies the broadcaster's candidate. Candidates
// arriving before any offer wait in a stash.
func (l *Listener) HandleIce(from string, candidate json.RawMessage) {
	l.mu.Lock()
	if l.cur == nil {
		l.stash = append(l.stash, candidate)
		l.mu.Unlock()
		return
	}
	e := l.cur
	l.mu.Unlock()
	if e.from != from {
		return
	}
	if err := e.peer.AddCandidate(candidate); err != nil {
		l.log.Warn().Err(err).Msgf("candidate from %v", from)
	}
}

func (l *Listener) Connected() bool { return l.entry() != nil }

func (l *Listener) Close() {
	l.mu.Lock()
	l.closed = true
	e := l.cur
	l.cur = nil
	l.stash = nil
	l.mu.Unlock()
	if e != nil {
		l.discard(e)
	}
	l.log.Info().Msg("listener closed")
}

func (l *Listener) entry() *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}

func (l *Listener) discard(e *entry) {
	if e.cancel != nil {
		e.cancel()
	}
	e.peer.Close()
}

func (l *Listener) sendCandidate(from string, ice *pion.ICECandidate) {
	init := ice.ToJSON()
	data, err := com.Marshal(init)
	if err != nil {
		l.log.Error().Err(err).Msg("candidate encode")
		return
	}
	l.sig.SendICE(data, addrFor(from))
}

func (l *Listener) onState(e *entry, state pion.PeerConnectionState, log *logger.Logger) {
	log.Debug().Msgf("connection state [%v]", state)
	switch state {
	case pion.PeerConnectionStateConnected:
		e.peer.ResetRestarts()
	case pion.PeerConnectionStateFailed, pion.PeerConnectionStateDisconnected:
		l.recover(e, log)
	}
}

// recover escalates like the broadcaster side, but after the restart
// budget is spent it only discards the connection: the broadcaster
// owns the destructive recreation and will offer again.
func (l *Listener) recover(e *entry, log *logger.Logger) {
	l.mu.Lock()
	if l.closed || l.cur != e {
		l.mu.Unlock()
		return
	}
	attempt := e.peer.NextRestart()
	if l.policy.Exhausted(attempt) {
		l.cur = nil
		l.mu.Unlock()
		e.peer.Close()
		log.Warn().Msg("restarts exhausted, waiting for a fresh offer")
		return
	}
	delay := l.policy.RestartDelayFor(attempt)
	e.cancel = l.clock.Schedule(delay, func() { l.restart(e, log) })
	l.mu.Unlock()
	log.Warn().Msgf("ice restart %v in %v", attempt, delay)
}

func (l *Listener) restart(e *entry, log *logger.Logger) {
	l.mu.Lock()
	if l.closed || l.cur != e {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	sdp, err := e.peer.Offer(true)
	if err != nil {
		log.Error().Err(err).Msg("restart offer fail")
		return
	}
	l.sig.SendOffer(sdp, addrFor(e.from))
	log.Debug().Str(logger.DirectionField, "→").Msg("restart offer")
}
