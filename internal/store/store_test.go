package store

import (
	"testing"
	"time"

	"github.com/raphaelgruber/parley/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(NewMemoryPersister(), WithDefaultModel("gpt-4o"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestCreateThreadSeedsSystemMessage(t *testing.T) {
	s := newTestStore(t)
	thread := s.CreateThread("", "")

	if thread.ID == "" {
		t.Fatal("expected allocated thread ID")
	}
	if thread.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", thread.Title, DefaultTitle)
	}
	if thread.Model != "gpt-4o" {
		t.Errorf("Model = %q, want process default", thread.Model)
	}
	if len(thread.Messages) != 1 || thread.Messages[0].Role != models.RoleSystem {
		t.Fatalf("expected exactly one seed system message, got %+v", thread.Messages)
	}
	if got := s.CurrentThreadID(); got != thread.ID {
		t.Errorf("CurrentThreadID = %q, want %q", got, thread.ID)
	}
}

func TestCreateThreadUniqueIDsAndOrdering(t *testing.T) {
	s := newTestStore(t)
	seen := make(map[string]bool)
	var last string
	for i := 0; i < 5; i++ {
		th := s.CreateThread("", "")
		if seen[th.ID] {
			t.Fatalf("duplicate thread ID %q", th.ID)
		}
		seen[th.ID] = true
		last = th.ID
		time.Sleep(time.Millisecond)
	}

	all := s.GetAllThreads()
	if len(all) != 5 {
		t.Fatalf("GetAllThreads len = %d, want 5", len(all))
	}
	if all[0].ID != last {
		t.Errorf("most recently updated thread should come first")
	}
	for i := 1; i < len(all); i++ {
		if all[i].UpdatedAt.After(all[i-1].UpdatedAt) {
			t.Errorf("threads not ordered by descending UpdatedAt at %d", i)
		}
	}
}

func TestUpdateThreadPartialMerge(t *testing.T) {
	s := newTestStore(t)
	th := s.CreateThread("", "")

	title := "Budget planning"
	s.UpdateThread(th.ID, ThreadUpdate{Title: &title})

	got, ok := s.GetThread(th.ID)
	if !ok {
		t.Fatal("thread vanished")
	}
	if got.Title != title {
		t.Errorf("Title = %q, want %q", got.Title, title)
	}
	if got.Model != th.Model {
		t.Errorf("Model changed unexpectedly: %q", got.Model)
	}
	if !got.UpdatedAt.After(th.UpdatedAt) && !got.UpdatedAt.Equal(th.UpdatedAt) {
		t.Error("UpdatedAt went backwards")
	}

	// No-op on a missing thread must not panic or create anything.
	s.UpdateThread("missing", ThreadUpdate{Title: &title})
	if len(s.GetAllThreads()) != 1 {
		t.Error("update of missing thread must not create it")
	}
}

func TestUpdateThreadMessagesIdempotent(t *testing.T) {
	s := newTestStore(t)
	th := s.CreateThread("", "")

	msgs := append(s.GetThreadMessages(th.ID),
		models.NewTextMessage(models.RoleUser, "hello"),
		models.NewTextMessage(models.RoleAssistant, "hi"),
	)
	s.UpdateThreadMessages(th.ID, msgs)
	first := s.GetThreadMessages(th.ID)

	time.Sleep(time.Millisecond)
	s.UpdateThreadMessages(th.ID, msgs)
	second := s.GetThreadMessages(th.ID)

	if len(first) != len(second) {
		t.Fatalf("length changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Content != second[i].Content {
			t.Errorf("message %d differs after reapplication", i)
		}
	}
}

func TestUpdateThreadMessagesCopyOnWrite(t *testing.T) {
	s := newTestStore(t)
	th := s.CreateThread("", "")

	msgs := []models.Message{models.NewTextMessage(models.RoleUser, "immutable?")}
	s.UpdateThreadMessages(th.ID, msgs)

	// Mutating the caller's slice must not affect store state.
	msgs[0].Content = "mutated"
	stored := s.GetThreadMessages(th.ID)
	if stored[0].Content != "immutable?" {
		t.Error("store shared memory with caller slice")
	}

	// Mutating a returned slice must not affect store state either.
	stored[0].Content = "mutated again"
	if s.GetThreadMessages(th.ID)[0].Content != "immutable?" {
		t.Error("store handed out its internal slice")
	}
}

func TestDeleteThreadCurrentPointer(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateThread("", "")
	b := s.CreateThread("", "")

	// b is current; deleting a must leave the pointer alone.
	s.DeleteThread(a.ID)
	if got := s.CurrentThreadID(); got != b.ID {
		t.Errorf("CurrentThreadID = %q, want %q", got, b.ID)
	}

	// Deleting the current thread clears the pointer.
	s.DeleteThread(b.ID)
	if got := s.CurrentThreadID(); got != "" {
		t.Errorf("CurrentThreadID = %q, want empty", got)
	}

	// Deleting again is a no-op.
	s.DeleteThread(b.ID)
}

func TestSetCurrentThreadNoValidation(t *testing.T) {
	s := newTestStore(t)
	s.SetCurrentThread("does-not-exist")
	if got := s.CurrentThreadID(); got != "does-not-exist" {
		t.Errorf("CurrentThreadID = %q", got)
	}
}

func TestClearAllThreads(t *testing.T) {
	s := newTestStore(t)
	s.CreateThread("", "")
	s.CreateThread("", "")
	s.ClearAllThreads()
	if len(s.GetAllThreads()) != 0 {
		t.Error("expected empty collection")
	}
	if s.CurrentThreadID() != "" {
		t.Error("expected cleared pointer")
	}
}

func TestSubscribeNotify(t *testing.T) {
	s := newTestStore(t)
	var calls int
	unsubscribe := s.Subscribe(func() { calls++ })

	s.CreateThread("", "")
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	unsubscribe()
	s.CreateThread("", "")
	if calls != 1 {
		t.Errorf("calls after unsubscribe = %d, want 1", calls)
	}
}

func TestNotifications(t *testing.T) {
	s := newTestStore(t)
	id := s.Notify(NotifyError, "something transient failed")

	ns := s.Notifications()
	if len(ns) != 1 || ns[0].Kind != NotifyError {
		t.Fatalf("unexpected notifications %+v", ns)
	}

	s.RemoveNotification(id)
	if len(s.Notifications()) != 0 {
		t.Error("notification not removed")
	}

	s.Notify(NotifyInfo, "a")
	s.Notify(NotifyInfo, "b")
	s.ClearNotifications()
	if len(s.Notifications()) != 0 {
		t.Error("notifications not cleared")
	}
}

func TestUserAndPreferences(t *testing.T) {
	s := newTestStore(t)
	s.SetUser(models.User{Name: "Ada"})
	s.SetUser(models.User{Email: "ada@example.com"})

	u := s.User()
	if u.Name != "Ada" || u.Email != "ada@example.com" {
		t.Errorf("merge failed: %+v", u)
	}

	p := s.Preferences()
	p.Theme = "dark"
	s.UpdatePreferences(p)
	if s.Preferences().Theme != "dark" {
		t.Error("preferences not updated")
	}
}
