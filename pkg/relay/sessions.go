package relay

import (
	"errors"
	"sync"

	"github.com/chalkcast/chalkcast/pkg/api"
)

var (
	errNoSession   = errors.New("no session")
	errUnknownRole = errors.New("unknown role")
)

// Sessions is the in-memory session registry. A connection is bound
// to at most one session at any instant, tracked with an inverse
// index, and a session disappears the moment its last member leaves.
//
// All methods are safe for concurrent use, one mutex guards both
// tables so cross-table invariants hold atomically.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	binding  map[string]string // connection id -> session id
}

type session struct {
	id       string
	teacher  string
	students map[string]struct{}
}

// Snapshot is a point-in-time copy of one session's membership.
type Snapshot struct {
	Id       string
	Teacher  string
	Students []string
}

// Departure describes a connection leaving a session.
type Departure struct {
	SessionId string
	Role      api.Role
	Remaining []string // members still in the session
	Deleted   bool
}

func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[string]*session, 10),
		binding:  make(map[string]string, 10),
	}
}

// Join idempotently ensures the session exists and binds the
// connection under the given role. Joining another session while
// bound unbinds the old one first (returned as prev). A new teacher
// displaces the current one, the displaced connection loses its
// binding (returned as displaced).
func (s *Sessions) Join(sessionId, id string, role api.Role) (snap Snapshot, prev *Departure, displaced string, err error) {
	if !role.Known() {
		return snap, nil, "", errUnknownRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if bound, ok := s.binding[id]; ok && bound != sessionId {
		prev = s.unbind(id)
	}

	sess, ok := s.sessions[sessionId]
	if !ok {
		sess = &session{id: sessionId, students: make(map[string]struct{}, 10)}
		s.sessions[sessionId] = sess
	}

	switch role {
	case api.RoleTeacher:
		if sess.teacher != "" && sess.teacher != id {
			displaced = sess.teacher
			delete(s.binding, displaced)
		}
		sess.teacher = id
		delete(sess.students, id)
	case api.RoleStudent:
		// a duplicate student join from the teacher doesn't demote it
		if sess.teacher != id {
			sess.students[id] = struct{}{}
		}
	}
	s.binding[id] = sessionId
	return sess.snapshot(), prev, displaced, nil
}

// Unbind removes the connection from its session on both sides and
// collects the session if it became empty. Nil when the connection
// wasn't bound anywhere.
func (s *Sessions) Unbind(id string) *Departure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unbind(id)
}

// unbind must be called under the lock.
func (s *Sessions) unbind(id string) *Departure {
	sessionId, ok := s.binding[id]
	if !ok {
		return nil
	}
	delete(s.binding, id)
	sess := s.sessions[sessionId]
	if sess == nil {
		return nil
	}
	dep := &Departure{SessionId: sessionId, Role: api.RoleStudent}
	if sess.teacher == id {
		sess.teacher = ""
		dep.Role = api.RoleTeacher
	} else {
		delete(sess.students, id)
	}
	if sess.teacher == "" && len(sess.students) == 0 {
		delete(s.sessions, sessionId)
		dep.Deleted = true
		return dep
	}
	dep.Remaining = sess.members()
	return dep
}

// Lookup returns a snapshot of the session, errNoSession otherwise.
func (s *Sessions) Lookup(sessionId string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionId]; ok {
		return sess.snapshot(), nil
	}
	return Snapshot{}, errNoSession
}

// SessionOf resolves the current binding of a connection.
func (s *Sessions) SessionOf(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionId, ok := s.binding[id]
	return sessionId, ok
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *session) snapshot() Snapshot {
	students := make([]string, 0, len(s.students))
	for id := range s.students {
		students = append(students, id)
	}
	return Snapshot{Id: s.id, Teacher: s.teacher, Students: students}
}

func (s *session) members() []string {
	all := make([]string, 0, len(s.students)+1)
	if s.teacher != "" {
		all = append(all, s.teacher)
	}
	for id := range s.students {
		all = append(all, id)
	}
	return all
}

// IsTeacher reports whether the id holds the teacher slot.
func (sn *Snapshot) IsTeacher(id string) bool { return sn.Teacher != "" && sn.Teacher == id }

// Others returns every member except the given one.
func (sn *Snapshot) Others(id string) []string {
	out := make([]string, 0, len(sn.Students)+1)
	if sn.Teacher != "" && sn.Teacher != id {
		out = append(out, sn.Teacher)
	}
	for _, s := range sn.Students {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}
