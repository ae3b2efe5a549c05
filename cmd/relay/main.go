package main

import (
	"context"
	goflag "flag"
	"time"

	"github.com/chalkcast/chalkcast/pkg/config"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/monitoring"
	"github.com/chalkcast/chalkcast/pkg/os"
	"github.com/chalkcast/chalkcast/pkg/relay"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf := config.NewRelayConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Relay.Debug, "r", false)
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	lock, err := os.NewFileLock(conf.Relay.LockFile)
	if err != nil {
		log.Fatal().Err(err).Msg("lock file fail")
	}
	if err := lock.Lock(); err != nil {
		log.Fatal().Err(err).Msg("another relay instance is running")
	}
	defer func() { _ = lock.Unlock() }()

	r, err := relay.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't start the relay")
	}
	r.Run()

	var mon *monitoring.Monitoring
	if conf.Relay.Monitoring.IsEnabled() {
		if mon = monitoring.New(conf.Relay.Monitoring, log); mon != nil {
			mon.Run()
		}
	}

	<-os.ExpectTermination()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
	if mon != nil {
		_ = mon.Shutdown(ctx)
	}
}
