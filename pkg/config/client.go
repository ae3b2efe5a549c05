package config

import flag "github.com/spf13/pflag"

// Client holds the settings shared by caster and listener binaries.
type Client struct {
	Debug     bool
	RelayUrl  string `fig:"relay_url"`
	SessionId string `fig:"session_id"`
}

type CasterConfig struct {
	Caster Client
	Webrtc Webrtc
}

type ListenerConfig struct {
	Listener Client
	Webrtc   Webrtc
}

var clientConfigPath string

func NewCasterConfig() (conf CasterConfig) {
	if err := LoadConfig(&conf, clientConfigPath); err != nil {
		panic(err)
	}
	return
}

func NewListenerConfig() (conf ListenerConfig) {
	if err := LoadConfig(&conf, clientConfigPath); err != nil {
		panic(err)
	}
	return
}

func (c *Client) WithFlags() {
	flag.BoolVar(&c.Debug, "debug", c.Debug, "debug logging")
	flag.StringVar(&c.RelayUrl, "relay", c.RelayUrl, "relay websocket url")
	flag.StringVar(&c.SessionId, "session", c.SessionId, "session id to join")
	flag.StringVar(&clientConfigPath, "conf", clientConfigPath, "custom configuration file path")
}

func (c *CasterConfig) ParseFlags() {
	c.Caster.WithFlags()
	flag.Parse()
}

func (c *ListenerConfig) ParseFlags() {
	c.Listener.WithFlags()
	flag.Parse()
}
