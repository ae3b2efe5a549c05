// Package client wraps the persistent relay connection of one
// participant: intents out, subscriber dispatch in.
package client

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/network/websocket"
	"github.com/goccy/go-json"
)

const welcomeWait = 10 * time.Second

var errNoWelcome = errors.New("no welcome from the relay")

type Transport struct {
	wire *websocket.WS
	log  *logger.Logger

	id       string
	welcomed chan struct{}
	once     sync.Once

	mu     sync.Mutex
	chans  map[api.Channel][]func(payload []byte)
	signal map[api.SignalType][]func(payload []byte)
}

// Connect dials the relay and blocks until it assigns this
// connection its identity.
func Connect(address string, log *logger.Logger) (*Transport, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		log:      log,
		welcomed: make(chan struct{}),
		chans:    make(map[api.Channel][]func([]byte)),
		signal:   make(map[api.SignalType][]func([]byte)),
	}
	wire, err := websocket.NewClient(*u, log)
	if err != nil {
		return nil, err
	}
	t.wire = wire
	wire.OnMessage = func(message []byte, _ error) { t.dispatch(message) }
	wire.Listen()

	select {
	case <-t.welcomed:
	case <-time.After(welcomeWait):
		wire.Close()
		return nil, errNoWelcome
	case <-wire.Done:
		return nil, errNoWelcome
	}
	log.Info().Str("cid", t.id).Msgf("Connected to %v", address)
	return t, nil
}

// Id is the relay-assigned connection identity.
func (t *Transport) Id() string { return t.id }

func (t *Transport) Done() chan struct{} { return t.wire.Done }

func (t *Transport) Close() { t.wire.Close() }

// OnChannel subscribes to a non-signal channel's raw payloads.
func (t *Transport) OnChannel(ch api.Channel, fn func(payload []byte)) {
	t.mu.Lock()
	t.chans[ch] = append(t.chans[ch], fn)
	t.mu.Unlock()
}

// OnSignal subscribes to one signal payload type.
func (t *Transport) OnSignal(st api.SignalType, fn func(payload []byte)) {
	t.mu.Lock()
	t.signal[st] = append(t.signal[st], fn)
	t.mu.Unlock()
}

func (t *Transport) dispatch(message []byte) {
	in := com.Unwrap[api.In](message)
	if in == nil || !in.Channel.Known() {
		t.log.Warn().Str(logger.DirectionField, "←").Msg("unknown channel")
		return
	}
	if in.Channel != api.Signal {
		for _, fn := range t.handlers(in.Channel, "") {
			fn(in.Payload)
		}
		return
	}
	head := com.Unwrap[api.Head](in.Payload)
	if head == nil {
		t.log.Warn().Str(logger.DirectionField, "←").Msg("bad signal payload")
		return
	}
	if head.Type == api.SigWelcome {
		if w := com.Unwrap[api.Welcome](in.Payload); w != nil {
			t.id = w.Id
			t.once.Do(func() { close(t.welcomed) })
		}
		return
	}
	for _, fn := range t.handlers(api.Signal, head.Type) {
		fn(in.Payload)
	}
}

func (t *Transport) handlers(ch api.Channel, st api.SignalType) []func([]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch == api.Signal {
		return t.signal[st]
	}
	return t.chans[ch]
}

func (t *Transport) send(ch api.Channel, payload any) bool {
	data, err := com.Marshal(api.Wrap(ch, payload))
	if err != nil {
		t.log.Error().Err(err).Msgf("encode %v", ch)
		return false
	}
	return t.wire.Write(data)
}

func (t *Transport) Join(sessionId string, role api.Role) bool {
	return t.send(api.Signal, api.NewJoin(sessionId, role))
}

func (t *Transport) RequestState(sessionId string) bool {
	return t.send(api.Signal, api.NewRequestState(sessionId))
}

func (t *Transport) SendOffer(sdp string, addr api.Addressing) bool {
	return t.send(api.Signal, api.NewOffer(sdp, addr))
}

func (t *Transport) SendAnswer(sdp string, addr api.Addressing) bool {
	return t.send(api.Signal, api.NewAnswer(sdp, addr))
}

func (t *Transport) SendICE(candidate json.RawMessage, addr api.Addressing) bool {
	return t.send(api.Signal, api.NewICE(candidate, addr))
}

func (t *Transport) SendBoard(patch api.BoardPatch) bool { return t.send(api.Board, patch) }

func (t *Transport) SendAvatar(u api.AvatarUpdate) bool { return t.send(api.Avatar, u) }

func (t *Transport) SendAudio(payload json.RawMessage) bool { return t.send(api.Audio, payload) }
