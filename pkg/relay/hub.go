package relay

import (
	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/network/httpx"
	"github.com/chalkcast/chalkcast/pkg/network/websocket"
	"github.com/goccy/go-json"
)

// Hub routes every inbound message of every participant: session
// membership, negotiation fan-out, and the opaque board/avatar/audio
// payloads. One message is fully handled before the socket reads the
// next one, cross-connection access goes through the locked
// registries.
type Hub struct {
	log      *logger.Logger
	sessions *Sessions
	senders  *Senders
	cache    *StateCache
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:      log,
		sessions: NewSessions(),
		senders:  NewSenders(),
		cache:    NewStateCache(),
	}
}

// handleConnection upgrades the request and serves the socket until
// it dies, then unbinds the participant and tells the rest.
func (h *Hub) handleConnection(w httpx.ResponseWriter, r *httpx.Request) {
	wire, err := websocket.NewServer(w, r, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("socket upgrade fail")
		return
	}
	c := NewClient(wire, h.log)
	c.Log().Info().Str(logger.DirectionField, "←").Msgf("Connect from %v", wire.RemoteAddr())

	h.senders.Register(c)
	metricConnections.Inc()
	wire.OnMessage = func(message []byte, err error) { h.route(c, message) }
	done := wire.Listen()

	c.Send(api.Wrap(api.Signal, api.NewWelcome(c.Id())))

	<-done
	h.senders.Unregister(c.Id())
	metricConnections.Dec()
	if dep := h.sessions.Unbind(c.Id()); dep != nil {
		h.departed(c.Id(), dep)
	}
	c.Log().Info().Str(logger.DirectionField, "←").Msg("Disconnect")
}

func (h *Hub) route(c Sender, message []byte) {
	in := com.Unwrap[api.In](message)
	if in == nil || !in.Channel.Known() {
		metricDropped.WithLabelValues(dropMalformed).Inc()
		c.Log().Warn().Msg("unknown channel")
		return
	}
	switch in.Channel {
	case api.Signal:
		h.routeSignal(c, in.Payload)
	default:
		h.routeData(c, in.Channel, in.Payload)
	}
}

func (h *Hub) routeSignal(c Sender, payload []byte) {
	head := com.Unwrap[api.Head](payload)
	if head == nil {
		metricDropped.WithLabelValues(dropMalformed).Inc()
		c.Log().Warn().Msg("bad signal payload")
		return
	}
	switch head.Type {
	case api.SigJoin:
		if join := com.Unwrap[api.Join](payload); join != nil {
			h.handleJoin(c, *join)
			return
		}
	case api.SigRequestState:
		if rs := com.Unwrap[api.RequestState](payload); rs != nil {
			h.handleRequestState(c, *rs)
			return
		}
	case api.SigSDP:
		if sdp := com.Unwrap[api.SDP](payload); sdp != nil {
			sdp.From = c.Id()
			h.deliver(c, sdp.Addressing, api.Wrap(api.Signal, sdp))
			return
		}
	case api.SigICE:
		if ice := com.Unwrap[api.ICE](payload); ice != nil {
			ice.From = c.Id()
			h.deliver(c, ice.Addressing, api.Wrap(api.Signal, ice))
			return
		}
	default:
		c.Log().Warn().Msgf("unknown signal type [%v]", head.Type)
	}
	metricDropped.WithLabelValues(dropMalformed).Inc()
}

func (h *Hub) handleJoin(c Sender, join api.Join) {
	if join.SessionId == "" || !join.Role.Known() {
		metricDropped.WithLabelValues(dropMalformed).Inc()
		c.Log().Warn().Msgf("bad join [%v] [%v]", join.SessionId, join.Role)
		return
	}
	snap, prev, displaced, err := h.sessions.Join(join.SessionId, c.Id(), join.Role)
	if err != nil {
		metricDropped.WithLabelValues(dropMalformed).Inc()
		c.Log().Warn().Err(err).Msg("join fail")
		return
	}
	if prev != nil {
		h.departed(c.Id(), prev)
	}
	if displaced != "" {
		c.Log().Info().Msgf("teacher %v displaced in %v", displaced, join.SessionId)
	}
	metricSessions.Set(float64(h.sessions.Len()))
	c.Log().Info().Str(logger.DirectionField, "←").Msgf("Join %v as %v", join.SessionId, join.Role)

	// the opposite role group learns about the newcomer
	joined := api.Wrap(api.Signal, api.NewPeerJoined(c.Id(), join.Role))
	if join.Role == api.RoleTeacher {
		h.senders.SendMany(snap.Students, joined)
	} else if snap.Teacher != "" {
		h.senders.SendTo(snap.Teacher, joined)
	}

	// teachers are the source of the cached state, no replay for them
	if join.Role == api.RoleStudent {
		h.replay(c, join.SessionId)
	}
}

func (h *Hub) handleRequestState(c Sender, rs api.RequestState) {
	sessionId := rs.SessionId
	if sessionId == "" {
		bound, ok := h.sessions.SessionOf(c.Id())
		if !ok {
			metricDropped.WithLabelValues(dropUnbound).Inc()
			c.Log().Warn().Msg("request-state while unbound")
			return
		}
		sessionId = bound
	}
	h.replay(c, sessionId)
}

func (h *Hub) replay(c Sender, sessionId string) {
	sent, failed := h.cache.Replay(sessionId, c.Send)
	metricReplayed.Add(float64(sent))
	if sent > 0 || failed > 0 {
		c.Log().Debug().Str(logger.DirectionField, "→").
			Msgf("replayed %v cached messages (%v failed) of %v", sent, failed, sessionId)
	}
}

// routeData forwards an opaque channel payload by the default rules
// and feeds the late-join cache.
func (h *Hub) routeData(c Sender, channel api.Channel, payload []byte) {
	sessionId, ok := h.sessions.SessionOf(c.Id())
	if !ok {
		metricDropped.WithLabelValues(dropUnbound).Inc()
		c.Log().Warn().Msgf("%v from unbound sender", channel)
		return
	}
	switch channel {
	case api.Board:
		if patch := com.Unwrap[api.BoardPatch](payload); patch != nil {
			h.cache.AddPatch(sessionId, *patch)
		}
	case api.Avatar:
		if u := com.Unwrap[api.AvatarUpdate](payload); u != nil {
			h.cache.SetAvatar(sessionId, *u)
		}
	}
	h.deliver(c, api.Addressing{}, api.Out{Channel: channel, Payload: json.RawMessage(payload)})
}

// deliver applies the addressing precedence: explicit target, then
// the recipient class, then the role default (teacher to all
// students, anyone else to the teacher).
func (h *Hub) deliver(c Sender, addr api.Addressing, out api.Out) {
	if addr.TargetSocketId != "" {
		h.count(out.Channel, h.senders.SendTo(addr.TargetSocketId, out), 1)
		return
	}
	sessionId, ok := h.sessions.SessionOf(c.Id())
	if !ok {
		metricDropped.WithLabelValues(dropUnbound).Inc()
		c.Log().Warn().Msgf("%v from unbound sender", out.Channel)
		return
	}
	snap, err := h.sessions.Lookup(sessionId)
	if err != nil {
		metricDropped.WithLabelValues(dropNoTarget).Inc()
		return
	}
	switch addr.Recipient {
	case api.ToTeacher:
		if snap.Teacher == "" {
			metricDropped.WithLabelValues(dropNoTarget).Inc()
			return
		}
		h.count(out.Channel, h.senders.SendTo(snap.Teacher, out), 1)
	case api.ToStudents:
		h.count(out.Channel, true, h.senders.SendMany(snap.Students, out))
	case api.ToAll:
		h.count(out.Channel, true, h.senders.SendMany(snap.Others(c.Id()), out))
	default:
		if snap.IsTeacher(c.Id()) {
			h.count(out.Channel, true, h.senders.SendMany(snap.Students, out))
		} else if snap.Teacher != "" {
			h.count(out.Channel, h.senders.SendTo(snap.Teacher, out), 1)
		} else {
			metricDropped.WithLabelValues(dropNoTarget).Inc()
		}
	}
}

func (h *Hub) count(channel api.Channel, ok bool, n int) {
	if !ok {
		metricDropped.WithLabelValues(dropSendFailed).Inc()
		return
	}
	metricRouted.WithLabelValues(string(channel)).Add(float64(n))
}

// departed notifies whoever stayed behind and clears the session
// cache when nobody did.
func (h *Hub) departed(id string, dep *Departure) {
	if dep.Deleted {
		h.cache.Drop(dep.SessionId)
		metricSessions.Set(float64(h.sessions.Len()))
		h.log.Info().Msgf("session %v is gone", dep.SessionId)
		return
	}
	h.senders.SendMany(dep.Remaining, api.Wrap(api.Signal, api.NewPeerLeft(id, dep.Role)))
}
