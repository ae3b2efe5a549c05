package webrtc

import (
	"fmt"
	"net"
	"sync"

	"github.com/chalkcast/chalkcast/pkg/config"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/network/socket"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// ApiFactory builds peer connections sharing one configured pion API
// instance (media engine, interceptors, setting engine, ICE servers).
type ApiFactory struct {
	api  *webrtc.API
	mu   sync.Mutex
	conf webrtc.Configuration
}

type ModApiFun func(m *webrtc.MediaEngine, i *interceptor.Registry, s *webrtc.SettingEngine)

func NewApiFactory(conf config.Webrtc, log *logger.Logger, mod ModApiFun) (api *ApiFactory, err error) {
	m := &webrtc.MediaEngine{}
	if err = m.RegisterDefaultCodecs(); err != nil {
		return
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err = webrtc.RegisterDefaultInterceptors(m, i); err != nil {
			return
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := webrtc.SettingEngine{LoggerFactory: customLogger}
	if conf.HasPortRange() {
		if err = s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return
		}
	}
	if conf.HasSinglePort() {
		var l any
		l, err = socket.NewSocketPortRoll("udp", conf.SinglePort)
		if err != nil {
			return
		}
		udp, ok := l.(*net.UDPConn)
		if !ok {
			err = fmt.Errorf("use of not a UDP socket")
			return
		}
		s.SetICEUDPMux(webrtc.NewICEUDPMux(customLogger, udp))
		log.Info().Msgf("The single port mode is active for %s", udp.LocalAddr())
	}
	if conf.HasIceIpMap() {
		s.SetNAT1To1IPs([]string{conf.IceIpMap}, webrtc.ICECandidateTypeHost)
		log.Info().Msgf("The NAT mapping is active for %v", conf.IceIpMap)
	}

	if mod != nil {
		mod(m, i, &s)
	}

	return &ApiFactory{
		api:  webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		conf: iceConfig(conf.IceServers),
	}, err
}

func (a *ApiFactory) NewPeer() (*webrtc.PeerConnection, error) {
	a.mu.Lock()
	conf := a.conf
	a.mu.Unlock()
	return a.api.NewPeerConnection(conf)
}

// SetIceServers swaps the ICE server list for connections created
// from now on, existing ones keep the old list.
func (a *ApiFactory) SetIceServers(servers []config.IceServer) {
	a.mu.Lock()
	a.conf = iceConfig(servers)
	a.mu.Unlock()
}

func iceConfig(servers []config.IceServer) webrtc.Configuration {
	c := webrtc.Configuration{ICEServers: []webrtc.ICEServer{}}
	for _, server := range servers {
		c.ICEServers = append(c.ICEServers, webrtc.ICEServer{
			URLs:       []string{server.Urls},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return c
}
