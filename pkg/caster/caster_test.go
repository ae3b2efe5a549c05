package caster

import (
	"sync"
	"testing"
	"time"

	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/config"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/webrtc"
	"github.com/goccy/go-json"
	pion "github.com/pion/webrtc/v4"
)

type sentSDP struct {
	sdp  string
	addr api.Addressing
}

type fakeSignaler struct {
	mu      sync.Mutex
	offers  []sentSDP
	answers []sentSDP
	ices    []api.Addressing
}

func (f *fakeSignaler) Id() string { return "teacher-1" }

func (f *fakeSignaler) SendOffer(sdp string, addr api.Addressing) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, sentSDP{sdp, addr})
	return true
}

func (f *fakeSignaler) SendAnswer(sdp string, addr api.Addressing) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, sentSDP{sdp, addr})
	return true
}

func (f *fakeSignaler) SendICE(_ json.RawMessage, addr api.Addressing) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ices = append(f.ices, addr)
	return true
}

func (f *fakeSignaler) sentOffers() []sentSDP {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSDP(nil), f.offers...)
}

func (f *fakeSignaler) sentAnswers() []sentSDP {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSDP(nil), f.answers...)
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

type fakeClock struct {
	mu    sync.Mutex
	calls []scheduled
}

func (f *fakeClock) Schedule(d time.Duration, fn func()) func() {
	f.mu.Lock()
	f.calls = append(f.calls, scheduled{d, fn})
	f.mu.Unlock()
	return func() {}
}

func (f *fakeClock) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClock) last() scheduled {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestCaster(t *testing.T) (*Caster, *fakeSignaler, *fakeClock, *webrtc.ApiFactory) {
	t.Helper()
	apiFactory, err := webrtc.NewApiFactory(config.Webrtc{}, logger.Default(), nil)
	if err != nil {
		t.Fatalf("api factory fail: %v", err)
	}
	sig := &fakeSignaler{}
	clock := &fakeClock{}
	policy := webrtc.RetryPolicy{MaxRestarts: 3, RestartDelay: time.Second, RecreateMin: time.Second}
	c := New(sig, apiFactory, policy, clock, logger.Default())
	t.Cleanup(c.Close)
	return c, sig, clock, apiFactory
}

func TestAddStudentSendsTargetedOffer(t *testing.T) {
	c, sig, _, _ := newTestCaster(t)

	if err := c.AddStudent("s1"); err != nil {
		t.Fatalf("add fail: %v", err)
	}
	offers := sig.sentOffers()
	if len(offers) != 1 {
		t.Fatalf("expected one offer, got %v", len(offers))
	}
	want := api.Addressing{Recipient: api.ToStudents, TargetSocketId: "s1"}
	if offers[0].addr != want {
		t.Errorf("offer addressing: got %+v, want %+v", offers[0].addr, want)
	}
	if !c.Source().Acquired() {
		t.Errorf("the shared source must be acquired on the first student")
	}

	// idempotent
	if err := c.AddStudent("s1"); err != nil {
		t.Fatalf("re-add fail: %v", err)
	}
	if len(sig.sentOffers()) != 1 || c.Len() != 1 {
		t.Errorf("duplicate add shouldn't renegotiate")
	}
}

// a student-initiated renegotiation comes back as a targeted answer
func TestOfferAnswerRoundTrip(t *testing.T) {
	c, sig, _, apiFactory := newTestCaster(t)
	if err := c.AddStudent("s1"); err != nil {
		t.Fatalf("add fail: %v", err)
	}
	offer := sig.sentOffers()[0].sdp

	student, err := apiFactory.NewPeer()
	if err != nil {
		t.Fatalf("student peer fail: %v", err)
	}
	defer func() { _ = student.Close() }()
	if err = student.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offer}); err != nil {
		t.Fatalf("student remote fail: %v", err)
	}
	answer, err := student.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("student answer fail: %v", err)
	}
	if err = student.SetLocalDescription(answer); err != nil {
		t.Fatalf("student local fail: %v", err)
	}
	c.HandleAnswer("s1", answer.SDP)

	// both sides are stable now, the student renegotiates
	restart, err := student.CreateOffer(&pion.OfferOptions{ICERestart: true})
	if err != nil {
		t.Fatalf("restart offer fail: %v", err)
	}
	if err = student.SetLocalDescription(restart); err != nil {
		t.Fatalf("student local fail: %v", err)
	}
	c.HandleOffer("s1", restart.SDP)

	answers := sig.sentAnswers()
	if len(answers) != 1 {
		t.Fatalf("expected the renegotiation answered, got %v", len(answers))
	}
	// answers carry only the explicit target, never a recipient class
	want := api.Addressing{TargetSocketId: "s1"}
	if answers[0].addr != want {
		t.Errorf("answer addressing: got %+v, want %+v", answers[0].addr, want)
	}
}

func TestAnswerForRemovedPeerIsNoop(t *testing.T) {
	c, _, _, _ := newTestCaster(t)
	c.HandleAnswer("ghost", "v=0")
	c.HandleIce("ghost", json.RawMessage(`{"candidate":"x"}`))
	c.RemoveStudent("ghost")
}

func TestRecoveryEscalation(t *testing.T) {
	c, sig, clock, _ := newTestCaster(t)
	if err := c.AddStudent("s1"); err != nil {
		t.Fatalf("add fail: %v", err)
	}
	e := c.entry("s1")
	log := logger.Default()

	// three failures: linearly growing restart delays
	for attempt := 1; attempt <= 3; attempt++ {
		c.recover(e, log)
		if clock.len() != attempt {
			t.Fatalf("expected %v scheduled restarts, got %v", attempt, clock.len())
		}
		if got, want := clock.last().delay, time.Duration(attempt)*time.Second; got != want {
			t.Errorf("attempt %v delay: got %v, want %v", attempt, got, want)
		}
		clock.last().fn()
	}
	offersBefore := len(sig.sentOffers())
	if offersBefore != 4 { // initial + three restarts
		t.Errorf("expected 4 offers so far, got %v", offersBefore)
	}

	// the fourth failure discards the entry and recreates it
	c.recover(e, log)
	if c.entry("s1") != nil {
		t.Fatalf("expected the entry discarded after the restart budget")
	}
	clock.last().fn()
	if c.entry("s1") == nil {
		t.Fatalf("expected the peer recreated")
	}
	if len(sig.sentOffers()) != offersBefore+1 {
		t.Errorf("expected a fresh offer after the recreation")
	}

	// a stale failure event of the old entry changes nothing
	c.recover(e, log)
	if c.entry("s1") == nil {
		t.Errorf("stale entry failure shouldn't touch the replacement")
	}
}

func TestRemoveCancelsPendingRecreate(t *testing.T) {
	c, sig, clock, _ := newTestCaster(t)
	if err := c.AddStudent("s1"); err != nil {
		t.Fatalf("add fail: %v", err)
	}
	e := c.entry("s1")
	log := logger.Default()
	for attempt := 1; attempt <= 3; attempt++ {
		c.recover(e, log)
		clock.last().fn()
	}
	c.recover(e, log) // schedules the destructive recreate
	offers := len(sig.sentOffers())

	// the student leaves while the recreate timer is pending
	c.RemoveStudent("s1")
	clock.last().fn()

	if c.entry("s1") != nil {
		t.Fatalf("a removed peer must stay removed")
	}
	if len(sig.sentOffers()) != offers {
		t.Errorf("no offer may go to a departed student")
	}
}

func TestConnectedResetsRestartCounter(t *testing.T) {
	c, _, _, _ := newTestCaster(t)
	if err := c.AddStudent("s1"); err != nil {
		t.Fatalf("add fail: %v", err)
	}
	e := c.entry("s1")
	e.peer.NextRestart()

	c.onState(e, pion.PeerConnectionStateConnected, logger.Default())
	if got := e.peer.Restarts(); got != 0 {
		t.Errorf("a connected peer starts its restart budget over, got %v", got)
	}
}

func TestCloseReleasesSource(t *testing.T) {
	c, _, _, _ := newTestCaster(t)
	if err := c.AddStudent("s1"); err != nil {
		t.Fatalf("add fail: %v", err)
	}
	c.Close()
	if c.Source().Acquired() {
		t.Errorf("expected the source released")
	}
	if c.Len() != 0 {
		t.Errorf("expected no entries left")
	}
	if err := c.AddStudent("s2"); err == nil {
		t.Errorf("expected adds rejected after close")
	}
}
