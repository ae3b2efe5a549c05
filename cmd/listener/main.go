package main

import (
	goflag "flag"

	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/client"
	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/config"
	"github.com/chalkcast/chalkcast/pkg/listener"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/os"
	"github.com/chalkcast/chalkcast/pkg/webrtc"
	pion "github.com/pion/webrtc/v4"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf := config.NewListenerConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Listener.Debug, "l", false)
	log.Info().Msgf("version %s", Version)

	t, err := client.Connect(conf.Listener.RelayUrl, log)
	if err != nil {
		log.Fatal().Err(err).Msgf("couldn't reach the relay at %v", conf.Listener.RelayUrl)
	}

	apiFactory, err := webrtc.NewApiFactory(conf.Webrtc, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc init fail")
	}
	if os.Exists("configs") {
		if w, err := config.NewWatcher("configs", conf.Webrtc, log); err == nil {
			w.OnUpdate(func(wc config.Webrtc) { apiFactory.SetIceServers(wc.IceServers) })
			defer w.Stop()
		}
	}

	lsn := listener.New(t, apiFactory, webrtc.DefaultRetryPolicy(), webrtc.NewClock(), log)
	lsn.OnTrack = func(track *pion.TrackRemote) {
		log.Info().Msgf("receiving [%v]", track.Codec().MimeType)
	}
	lsn.Wire(t)

	// a teacher arriving later learns about us through a re-join
	t.OnSignal(api.SigPeerJoined, func(p []byte) {
		pj := com.Unwrap[api.PeerJoined](p)
		if pj != nil && pj.Role == api.RoleTeacher {
			t.Join(conf.Listener.SessionId, api.RoleStudent)
		}
	})
	t.Join(conf.Listener.SessionId, api.RoleStudent)

	select {
	case <-t.Done():
		log.Error().Msg("the relay connection is gone")
	case <-os.ExpectTermination():
	}
	lsn.Close()
	t.Close()
}
