package main

import (
	goflag "flag"

	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/caster"
	"github.com/chalkcast/chalkcast/pkg/client"
	"github.com/chalkcast/chalkcast/pkg/config"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/os"
	"github.com/chalkcast/chalkcast/pkg/webrtc"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf := config.NewCasterConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Caster.Debug, "c", false)
	log.Info().Msgf("version %s", Version)

	t, err := client.Connect(conf.Caster.RelayUrl, log)
	if err != nil {
		log.Fatal().Err(err).Msgf("couldn't reach the relay at %v", conf.Caster.RelayUrl)
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

	cast := caster.New(t, apiFactory, webrtc.DefaultRetryPolicy(), webrtc.NewClock(), log)
	cast.Wire(t)
	t.Join(conf.Caster.SessionId, api.RoleTeacher)

	select {
	case <-t.Done():
		log.Error().Msg("the relay connection is gone")
	case <-os.ExpectTermination():
	}
	cast.Close()
	t.Close()
}
