package relay

import (
	"context"

	"github.com/chalkcast/chalkcast/pkg/config"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/network/httpx"
)

// Relay is the signaling service: an HTTP server with a single
// websocket endpoint feeding the hub.
type Relay struct {
	Hub *Hub

	conf   config.RelayConfig
	log    *logger.Logger
	server *httpx.Server
}

func New(conf config.RelayConfig, log *logger.Logger) (*Relay, error) {
	hub := NewHub(log)
	opts := []httpx.Option{httpx.WithLogger(log)}
	if conf.Relay.Server.Https {
		tls := conf.Relay.Server.Tls
		opts = append(opts, httpx.WithTLS(tls.HttpsCert, tls.HttpsKey, tls.Domain))
	}
	server, err := httpx.NewServer(
		conf.Relay.Server.Address,
		func(s *httpx.Server) httpx.Handler {
			mux := s.Mux()
			mux.HandleFunc("/ws", hub.handleConnection)
			mux.HandleFunc("/health", func(w httpx.ResponseWriter, _ *httpx.Request) {
				w.WriteHeader(200)
				_, _ = w.Write([]byte("ok"))
			})
			return mux
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	return &Relay{Hub: hub, conf: conf, log: log, server: server}, nil
}

// Addr is the resolved listen address of the server.
func (r *Relay) Addr() string { return r.server.Addr }

func (r *Relay) Run() { r.server.Run() }

func (r *Relay) Shutdown(ctx context.Context) error {
	r.log.Info().Msg("Shutting down the relay")
	return r.server.Shutdown(ctx)
}
