package relay

import (
	"sync"

	"github.com/chalkcast/chalkcast/pkg/api"
)

// StateCache keeps the per-session state needed to bring a late
// joiner up to date: board patches accumulate in arrival order, the
// avatar payloads are last-value-wins per kind.
type StateCache struct {
	mu       sync.Mutex
	sessions map[string]*cachedState
}

type cachedState struct {
	patches   []api.BoardPatch
	pose      *api.AvatarUpdate
	photo     *api.AvatarUpdate
	landmarks *api.AvatarUpdate
}

func NewStateCache() *StateCache {
	return &StateCache{sessions: make(map[string]*cachedState, 10)}
}

func (c *StateCache) AddPatch(sessionId string, p api.BoardPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(sessionId).patches = append(c.state(sessionId).patches, p)
}

func (c *StateCache) SetAvatar(sessionId string, u api.AvatarUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(sessionId)
	switch u.Kind() {
	case api.AvatarPose:
		st.pose = &u
	case api.AvatarPhoto:
		st.photo = &u
	case api.AvatarLandmarks:
		st.landmarks = &u
	}
}

func (c *StateCache) Drop(sessionId string) {
	c.mu.Lock()
	delete(c.sessions, sessionId)
	c.mu.Unlock()
}

// Replay pushes the cached state through send in a fixed order:
// every board patch, then pose, photo (stripped to the photo bytes
// and its dimensions), landmarks. A failed send is counted and
// skipped, it never aborts the remaining steps.
func (c *StateCache) Replay(sessionId string, send func(api.Out) bool) (sent, failed int) {
	c.mu.Lock()
	st, ok := c.sessions[sessionId]
	if !ok {
		c.mu.Unlock()
		return
	}
	patches := make([]api.BoardPatch, len(st.patches))
	copy(patches, st.patches)
	pose, photo, landmarks := st.pose, st.photo, st.landmarks
	c.mu.Unlock()

	count := func(ok bool) {
		if ok {
			sent++
		} else {
			failed++
		}
	}
	for _, p := range patches {
		count(send(api.Wrap(api.Board, p)))
	}
	if pose != nil {
		count(send(api.Wrap(api.Avatar, *pose)))
	}
	if photo != nil {
		count(send(api.Wrap(api.Avatar, photo.PhotoOnly())))
	}
	if landmarks != nil {
		count(send(api.Wrap(api.Avatar, *landmarks)))
	}
	return
}

// state must be called under the lock.
func (c *StateCache) state(sessionId string) *cachedState {
	st, ok := c.sessions[sessionId]
	if !ok {
		st = &cachedState{}
		c.sessions[sessionId] = st
	}
	return st
}
