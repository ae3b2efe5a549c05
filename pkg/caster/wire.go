package caster

import (
	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/client"
	"github.com/chalkcast/chalkcast/pkg/com"
)

// Wire subscribes the caster to the relay signals: joining students
// get a connection, leaving ones are torn down, answers and restart
// offers land at the right entry.
func (c *Caster) Wire(t *client.Transport) {
	t.OnSignal(api.SigPeerJoined, func(p []byte) {
		pj := com.Unwrap[api.PeerJoined](p)
		if pj == nil || pj.Role != api.RoleStudent {
			return
		}
		if err := c.AddStudent(pj.From); err != nil {
			c.log.Error().Err(err).Msgf("add student %v", pj.From)
		}
	})
	t.OnSignal(api.SigPeerLeft, func(p []byte) {
		if pl := com.Unwrap[api.PeerLeft](p); pl != nil {
			c.RemoveStudent(pl.From)
		}
	})
	t.OnSignal(api.SigSDP, func(p []byte) {
		sdp := com.Unwrap[api.SDP](p)
		if sdp == nil || sdp.From == "" {
			return
		}
		switch sdp.SdpType {
		case api.SDPAnswer:
			c.HandleAnswer(sdp.From, sdp.Sdp)
		case api.SDPOffer:
			c.HandleOffer(sdp.From, sdp.Sdp)
		}
	})
	t.OnSignal(api.SigICE, func(p []byte) {
		if ice := com.Unwrap[api.ICE](p); ice != nil && ice.From != "" {
			c.HandleIce(ice.From, ice.Candidate)
		}
	})
}
