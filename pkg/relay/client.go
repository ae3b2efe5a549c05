package relay

import (
	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/chalkcast/chalkcast/pkg/network/websocket"
)

// Client wraps one live participant connection.
type Client struct {
	id   com.Uid
	wire *websocket.WS
	log  *logger.Logger
}

func NewClient(wire *websocket.WS, log *logger.Logger) *Client {
	id := com.NewUid()
	return &Client{
		id:   id,
		wire: wire,
		log:  log.Extend(log.With().Str("cid", id.Short())),
	}
}

func (c *Client) Id() string          { return c.id.String() }
func (c *Client) Log() *logger.Logger { return c.log }

// Send queues a wrapped message for delivery, false when the
// message couldn't be encoded or the socket is gone.
func (c *Client) Send(out api.Out) bool {
	data, err := com.Marshal(out)
	if err != nil {
		c.log.Error().Err(err).Msgf("encode %v", out.Channel)
		return false
	}
	if !c.wire.Write(data) {
		c.log.Debug().Str(logger.DirectionField, "→").Msgf("drop %v, closed socket", out.Channel)
		return false
	}
	return true
}

func (c *Client) Close() { c.wire.Close() }
