package config

import flag "github.com/spf13/pflag"

type RelayConfig struct {
	Relay Relay
}

type Relay struct {
	Debug      bool
	LockFile   string
	Monitoring Monitoring
	Server     Server
}

// allows custom config path
var relayConfigPath string

func NewRelayConfig() (conf RelayConfig) {
	if err := LoadConfig(&conf, relayConfigPath); err != nil {
		panic(err)
	}
	return
}

func (c *RelayConfig) ParseFlags() {
	c.Relay.Server.WithFlags()
	flag.BoolVar(&c.Relay.Debug, "debug", c.Relay.Debug, "debug logging")
	flag.IntVar(&c.Relay.Monitoring.Port, "monitoring.port", c.Relay.Monitoring.Port, "monitoring server port")
	flag.StringVar(&relayConfigPath, "conf", relayConfigPath, "custom configuration file path")
	flag.Parse()
}
