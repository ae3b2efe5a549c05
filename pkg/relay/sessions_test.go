package relay

import (
	"testing"

	"github.com/chalkcast/chalkcast/pkg/api"
)

func TestSingleTeacher(t *testing.T) {
	s := NewSessions()

	if _, _, _, err := s.Join("math", "t1", api.RoleTeacher); err != nil {
		t.Fatalf("join fail: %v", err)
	}
	snap, _, displaced, err := s.Join("math", "t2", api.RoleTeacher)
	if err != nil {
		t.Fatalf("join fail: %v", err)
	}
	if snap.Teacher != "t2" {
		t.Errorf("expected t2 to hold the teacher slot, got %v", snap.Teacher)
	}
	if displaced != "t1" {
		t.Errorf("expected t1 to be displaced, got %v", displaced)
	}
	if _, ok := s.SessionOf("t1"); ok {
		t.Errorf("displaced teacher should lose its binding")
	}

	// promoting a student clears it from the student set
	if _, _, _, err = s.Join("math", "s1", api.RoleStudent); err != nil {
		t.Fatalf("join fail: %v", err)
	}
	snap, _, _, err = s.Join("math", "s1", api.RoleTeacher)
	if err != nil {
		t.Fatalf("join fail: %v", err)
	}
	if snap.Teacher != "s1" || len(snap.Students) != 0 {
		t.Errorf("expected s1 promoted out of the student set, got %+v", snap)
	}
}

func TestTeacherNotDemotedByDuplicateJoin(t *testing.T) {
	s := NewSessions()
	_, _, _, _ = s.Join("math", "t1", api.RoleTeacher)
	snap, _, _, err := s.Join("math", "t1", api.RoleStudent)
	if err != nil {
		t.Fatalf("join fail: %v", err)
	}
	if snap.Teacher != "t1" || len(snap.Students) != 0 {
		t.Errorf("duplicate student join shouldn't demote the teacher, got %+v", snap)
	}
}

func TestExclusiveBinding(t *testing.T) {
	s := NewSessions()
	_, _, _, _ = s.Join("math", "t1", api.RoleTeacher)
	_, _, _, _ = s.Join("math", "s1", api.RoleStudent)

	_, prev, _, err := s.Join("bio", "s1", api.RoleStudent)
	if err != nil {
		t.Fatalf("join fail: %v", err)
	}
	if prev == nil || prev.SessionId != "math" {
		t.Fatalf("expected a departure from math, got %+v", prev)
	}
	if prev.Deleted {
		t.Errorf("math still has a teacher, it shouldn't be deleted")
	}
	if got, _ := s.SessionOf("s1"); got != "bio" {
		t.Errorf("expected s1 bound to bio, got %v", got)
	}
	snap, err := s.Lookup("math")
	if err != nil {
		t.Fatalf("lookup fail: %v", err)
	}
	if len(snap.Students) != 0 {
		t.Errorf("s1 should be out of math, got %+v", snap.Students)
	}
}

func TestEmptySessionCollected(t *testing.T) {
	s := NewSessions()
	_, _, _, _ = s.Join("math", "t1", api.RoleTeacher)
	_, _, _, _ = s.Join("math", "s1", api.RoleStudent)

	dep := s.Unbind("t1")
	if dep == nil || dep.Deleted {
		t.Fatalf("session with a remaining student shouldn't be deleted, got %+v", dep)
	}
	if dep.Role != api.RoleTeacher || len(dep.Remaining) != 1 || dep.Remaining[0] != "s1" {
		t.Errorf("unexpected departure %+v", dep)
	}

	dep = s.Unbind("s1")
	if dep == nil || !dep.Deleted {
		t.Fatalf("expected the emptied session to be collected, got %+v", dep)
	}
	if _, err := s.Lookup("math"); err == nil {
		t.Errorf("math should be gone from the registry")
	}
	if s.Len() != 0 {
		t.Errorf("expected an empty registry, got %v", s.Len())
	}
}

func TestUnbindUnknown(t *testing.T) {
	s := NewSessions()
	if dep := s.Unbind("nobody"); dep != nil {
		t.Errorf("expected nil departure, got %+v", dep)
	}
}

func TestJoinUnknownRole(t *testing.T) {
	s := NewSessions()
	if _, _, _, err := s.Join("math", "x", "admin"); err == nil {
		t.Errorf("expected unknown role to be rejected")
	}
}
