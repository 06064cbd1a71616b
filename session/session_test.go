package session

import (
	"context"
	"sync"
	"testing"

	"github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/message"
)

// memStore is a map-backed Store for manager tests. The real backends live in
// session/store, which imports this package, so they cannot be used here.
type memStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*Record)}
}

func (s *memStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *memStore) Load(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return record, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok, nil
}

func TestIsModerator(t *testing.T) {
	cases := []struct {
		member TeamMember
		want   bool
	}{
		{TeamMember{Name: "Analyst"}, false},
		{TeamMember{Name: "Moderator"}, true},
		{TeamMember{Name: "Team Moderator"}, true},
		{TeamMember{Name: "Synthesizer", Moderator: true}, true},
		{TeamMember{Name: "moderator"}, false},
	}
	for _, tc := range cases {
		if got := tc.member.IsModerator(); got != tc.want {
			t.Errorf("IsModerator(%q, flag=%v) = %v, want %v", tc.member.Name, tc.member.Moderator, got, tc.want)
		}
	}
}

func TestSessionModeratorFirstTaggedWins(t *testing.T) {
	sess := New("s1", nil, []TeamMember{
		{ID: "m1", Name: "Analyst"},
		{ID: "m2", Name: "Synth A", Moderator: true},
		{ID: "m3", Name: "Synth B", Moderator: true},
	})

	mod, ok := sess.Moderator()
	if !ok {
		t.Fatal("Expected a moderator")
	}
	if mod.ID != "m2" {
		t.Errorf("Expected first tagged member, got %s", mod.ID)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	sess := New("s1", []string{"d1"}, []TeamMember{{ID: "m1", Name: "Analyst", Role: "analysis", Model: "nova-pro"}})
	sess.Log.Append(message.NewUserTurn("hello"), message.NewAgentTurn("m1", "Analyst", "analysis", "nova-pro", "hi"))

	rebuilt := FromRecord(sess.Snapshot())
	if rebuilt.ID != "s1" || len(rebuilt.Members) != 1 || rebuilt.Log.Len() != 2 {
		t.Errorf("Round trip lost state: %+v", rebuilt)
	}
	if rebuilt.Log.Turns()[0].Content != "hello" {
		t.Error("Conversation not carried through snapshot")
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(WithStore(newMemStore()))

	sess, err := mgr.Create(ctx, []string{"d1"}, []TeamMember{{ID: "m1", Name: "Analyst", Role: "analysis"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Expected generated session id")
	}

	got, err := mgr.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != sess {
		t.Error("Expected the live session instance")
	}

	sess.Log.Append(message.NewUserTurn("hello"))
	if err := mgr.Save(ctx, sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ids, err := mgr.List(ctx)
	if err != nil || len(ids) != 1 {
		t.Fatalf("List: ids=%v err=%v", ids, err)
	}

	if err := mgr.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := mgr.Get(ctx, sess.ID); err == nil {
		t.Error("Expected error getting deleted session")
	}
}

func TestManagerRehydratesFromStore(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()

	first := NewManager(WithStore(st))
	sess, err := first.Create(ctx, []string{"d1"}, []TeamMember{{ID: "m1", Name: "Analyst"}})
	if err != nil {
		t.Fatal(err)
	}
	sess.Log.Append(message.NewUserTurn("persisted prompt"))
	if err := first.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}

	// A fresh manager over the same store sees the session.
	second := NewManager(WithStore(st))
	got, err := second.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get from fresh manager failed: %v", err)
	}
	if got.Log.Len() != 1 || got.Log.Turns()[0].Content != "persisted prompt" {
		t.Error("Rehydrated session lost conversation")
	}
}
