// Package caster is the broadcaster-side orchestrator: one
// independent peer connection per student, all fed from a single
// shared audio source.
package caster

import (
	"errors"
	"sync"

	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/webrtc"
	"github.com/goccy/go-json"
	pion "github.com/pion/webrtc/v4"
)

var errClosed = errors.New("caster is closed")

// Signaler carries negotiation messages to the relay.
type Signaler interface {
	Id() string
	SendOffer(sdp string, addr api.Addressing) bool
	SendAnswer(sdp string, addr api.Addressing) bool
	SendICE(candidate json.RawMessage, addr api.Addressing) bool
}

type Caster struct {
	sig    Signaler
	api    *webrtc.ApiFactory
	policy webrtc.RetryPolicy
	clock  webrtc.Clock
	log    *logger.Logger
	source *Source

	mu        sync.Mutex
	entries   map[string]*entry
	recreates map[string]func() // pending rebuilds, keyed like entries
	closed    bool
}

type entry struct {
	target string
	peer   *webrtc.Peer
	cancel func()
}

func New(sig Signaler, apiFactory *webrtc.ApiFactory, policy webrtc.RetryPolicy, clock webrtc.Clock, log *logger.Logger) *Caster {
	return &Caster{
		sig:       sig,
		api:       apiFactory,
		policy:    policy,
		clock:     clock,
		log:       log,
		source:    NewSource(),
		entries:   make(map[string]*entry, 10),
		recreates: make(map[string]func(), 2),
	}
}

// Source exposes the shared audio input for the capture side.
func (c *Caster) Source() *Source { return c.source }

func addrFor(target string) api.Addressing {
	return api.Addressing{Recipient: api.ToStudents, TargetSocketId: target}
}

// AddStudent starts a negotiation with the student: lazily acquires
// the shared audio source, builds a connection carrying it and sends
// an offer. A second call for the same target is a no-op.
func (c *Caster) AddStudent(target string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	if _, ok := c.entries[target]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	track, err := c.source.Track()
	if err != nil {
		return err
	}
	conn, err := c.api.NewPeer()
	if err != nil {
		return err
	}
	sender, err := conn.AddTrack(track)
	if err != nil {
		_ = conn.Close()
		return err
	}
	go drainRTCP(sender)

	log := c.log.Extend(c.log.With().Str("peer", target))
	e := &entry{target: target, peer: webrtc.NewPeer(conn, log)}
	conn.OnICECandidate(func(ice *pion.ICECandidate) {
		if ice != nil {
			c.sendCandidate(target, ice)
		}
	})
	conn.OnConnectionStateChange(func(state pion.PeerConnectionState) { c.onState(e, state, log) })

	c.mu.Lock()
	if c.closed || c.entries[target] != nil {
		c.mu.Unlock()
		e.peer.Close()
		return nil
	}
	c.entries[target] = e
	cancelRecreate := c.recreates[target]
	delete(c.recreates, target)
	c.mu.Unlock()
	if cancelRecreate != nil {
		cancelRecreate()
	}

	sdp, err := e.peer.Offer(false)
	if err != nil {
		c.RemoveStudent(target)
		return err
	}
	c.sig.SendOffer(sdp, addrFor(target))
	log.Debug().Str(logger.DirectionField, "→").Msg("offer")
	return nil
}

// HandleAnswer applies the student's answer, a no-op when the entry
// is already gone.
func (c *Caster) HandleAnswer(from, sdp string) {
	e := c.entry(from)
	if e == nil {
		c.log.Debug().Msgf("answer from unknown peer %v", from)
		return
	}
	if err := e.peer.SetRemote(pion.SDPTypeAnswer, sdp); err != nil {
		c.log.Error().Err(err).Msgf("answer from %v", from)
	}
}

// HandleOffer answers a renegotiation offer coming from a student
// whose side noticed the degradation first.
func (c *Caster) HandleOffer(from, sdp string) {
	e := c.entry(from)
	if e == nil {
		c.log.Debug().Msgf("offer from unknown peer %v", from)
		return
	}
	if err := e.peer.SetRemote(pion.SDPTypeOffer, sdp); err != nil {
		c.log.Error().Err(err).Msgf("offer from %v", from)
		return
	}
	answer, err := e.peer.Answer()
	if err != nil {
		c.log.Error().Err(err).Msgf("answer for %v", from)
		return
	}
	// an answer goes back to its offerer only, no recipient class
	c.sig.SendAnswer(answer, api.Addressing{TargetSocketId: from})
}

// HandleIce queues or applies a student's candidate.
func (c *Caster) HandleIce(from string, candidate json.RawMessage) {
	e := c.entry(from)
	if e == nil {
		return
	}
	if err := e.peer.AddCandidate(candidate); err != nil {
		c.log.Warn().Err(err).Msgf("candidate from %v", from)
	}
}

// RemoveStudent tears the student's connection down along with any
// pending rebuild of it, idempotent.
func (c *Caster) RemoveStudent(target string) {
	c.mu.Lock()
	e := c.entries[target]
	delete(c.entries, target)
	cancelRecreate := c.recreates[target]
	delete(c.recreates, target)
	c.mu.Unlock()
	if cancelRecreate != nil {
		cancelRecreate()
	}
	if e == nil {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.peer.Close()
	c.log.Info().Msgf("peer %v removed", target)
}

func (c *Caster) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close tears down every entry and releases the shared source.
func (c *Caster) Close() {
	c.mu.Lock()
	c.closed = true
	entries := c.entries
	c.entries = map[string]*entry{}
	recreates := c.recreates
	c.recreates = map[string]func(){}
	c.mu.Unlock()
	for _, cancel := range recreates {
		cancel()
	}
	for _, e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
		e.peer.Close()
	}
	c.source.Release()
	c.log.Info().Msg("caster closed")
}

func (c *Caster) entry(target string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[target]
}

func (c *Caster) sendCandidate(target string, ice *pion.ICECandidate) {
	init := ice.ToJSON()
	data, err := com.Marshal(init)
	if err != nil {
		c.log.Error().Err(err).Msg("candidate encode")
		return
	}
	c.sig.SendICE(data, addrFor(target))
}

// onState drives the per-peer recovery state machine. Failures of one
// peer never touch the others.
func (c *Caster) onState(e *entry, state pion.PeerConnectionState, log *logger.Logger) {
	log.Debug().Msgf("connection state [%v]", state)
	switch state {
	case pion.PeerConnectionStateConnected:
		e.peer.ResetRestarts()
	case pion.PeerConnectionStateFailed, pion.PeerConnectionStateDisconnected:
		c.recover(e, log)
	}
}

// recover schedules an ICE restart with a growing delay, or after the
// restart budget is spent, rebuilds the peer from scratch after a
// randomized pause.
func (c *Caster) recover(e *entry, log *logger.Logger) {
	c.mu.Lock()
	if c.closed || c.entries[e.target] != e {
		c.mu.Unlock()
		return
	}
	attempt := e.peer.NextRestart()
	if c.policy.Exhausted(attempt) {
		delete(c.entries, e.target)
		// the pending slot makes the rebuild cancellable by a removal
		c.recreates[e.target] = func() {}
		c.mu.Unlock()
		e.peer.Close()
		log.Warn().Msgf("restarts exhausted, recreating")
		cancel := c.clock.Schedule(c.policy.RecreateDelay(), func() { c.recreate(e.target, log) })
		c.mu.Lock()
		if _, pending := c.recreates[e.target]; pending {
			c.recreates[e.target] = cancel
			c.mu.Unlock()
			return
		}
		// removed while the timer was being armed
		c.mu.Unlock()
		cancel()
		return
	}
	delay := c.policy.RestartDelayFor(attempt)
	e.cancel = c.clock.Schedule(delay, func() { c.restart(e, log) })
	c.mu.Unlock()
	log.Warn().Msgf("ice restart %v in %v", attempt, delay)
}

// recreate rebuilds the peer from scratch unless the pending slot was
// cancelled by a removal in the meantime.
func (c *Caster) recreate(target string, log *logger.Logger) {
	c.mu.Lock()
	if _, pending := c.recreates[target]; !pending {
		c.mu.Unlock()
		return
	}
	delete(c.recreates, target)
	c.mu.Unlock()
	if err := c.AddStudent(target); err != nil && !errors.Is(err, errClosed) {
		log.Error().Err(err).Msg("recreate fail")
	}
}

func (c *Caster) restart(e *entry, log *logger.Logger) {
	c.mu.Lock()
	if c.closed || c.entries[e.target] != e {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	sdp, err := e.peer.Offer(true)
	if err != nil {
		log.Error().Err(err).Msg("restart offer fail")
		return
	}
	c.sig.SendOffer(sdp, addrFor(e.target))
	log.Debug().Str(logger.DirectionField, "→").Msg("restart offer")
}

func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
