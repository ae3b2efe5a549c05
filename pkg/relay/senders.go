package relay

import (
	"github.com/chalkcast/chalkcast/pkg/api"
	"github.com/chalkcast/chalkcast/pkg/com"
	"github.com/chalkcast/chalkcast/pkg/logger"
)

// Sender is a live participant transport handle.
type Sender interface {
	Id() string
	Send(out api.Out) bool
	Log() *logger.Logger
}

// Senders maps connection ids to their live transport handles and
// exposes best-effort delivery, a dead or missing handle is a logged
// drop, never an error.
type Senders struct {
	clients com.Map[string, Sender]
}

func NewSenders() *Senders { return &Senders{clients: com.NewMap[string, Sender]()} }

func (s *Senders) Register(c Sender)    { s.clients.Put(c.Id(), c) }
func (s *Senders) Unregister(id string) { s.clients.RemoveByKey(id) }
func (s *Senders) Len() int             { return s.clients.Len() }
func (s *Senders) Has(id string) bool   { return s.clients.Has(id) }

// SendTo unicasts, false when the id is unknown or the send failed.
func (s *Senders) SendTo(id string, out api.Out) bool {
	c, err := s.clients.Find(id)
	if err != nil {
		return false
	}
	return c.Send(out)
}

// SendMany unicasts to each id in turn, one failure doesn't stop the
// rest. Returns the delivered count.
func (s *Senders) SendMany(ids []string, out api.Out) (sent int) {
	for _, id := range ids {
		if s.SendTo(id, out) {
			sent++
		}
	}
	return
}
