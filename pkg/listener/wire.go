package listener

import (
	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/client"
	"github.com/chalkcast/chalkcast/pkg/com"
)

// Wire subscribes the listener to the relay signals.
func (l *Listener) Wire(t *client.Transport) {
	t.OnSignal(api.SigSDP, func(p []byte) {
		sdp := com.Unwrap[api.SDP](p)
		if sdp == nil || sdp.From == "" {
			return
		}
		switch sdp.SdpType {
		case api.SDPOffer:
			l.HandleOffer(sdp.From, sdp.Sdp)
		case api.SDPAnswer:
			l.HandleAnswer(sdp.From, sdp.Sdp)
		}
	})
	t.OnSignal(api.SigICE, func(p []byte) {
		if ice := com.Unwrap[api.ICE](p); ice != nil && ice.From != "" {
			l.HandleIce(ice.From, ice.Candidate)
		}
	})
}
