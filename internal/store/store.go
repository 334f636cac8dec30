// Package store is the single source of truth for chat threads, the
// current-thread pointer, and the user profile. All writers go through
// named operations; mutations replace whole snapshots so there is no
// partial-write state, and every mutation is written through to the
// durable persister before subscribers are notified.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/raphaelgruber/parley/internal/models"
)

// DefaultSystemPrompt seeds the message sequence of every new thread.
const DefaultSystemPrompt = "You are a helpful assistant. You have access to tools."

// DefaultTitle is the placeholder title for threads without a synthesized one.
const DefaultTitle = "New Chat"

// Store owns the thread collection. Operations never fail; acting on a
// missing identifier is a silent no-op by contract.
type Store struct {
	mu sync.RWMutex

	user         models.User
	preferences  models.Preferences
	threads      map[string]models.Thread
	currentID    string
	defaultModel string

	notifications []Notification

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	persist Persister
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultModel sets the model assigned to threads created without one.
func WithDefaultModel(model string) Option {
	return func(s *Store) { s.defaultModel = model }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open creates a store backed by the given persister and loads the
// persisted snapshot, if any.
func Open(p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		preferences:  models.DefaultPreferences(),
		threads:      make(map[string]models.Thread),
		defaultModel: "gpt-4o",
		subs:         make(map[int]func()),
		persist:      p,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	state, err := p.Load()
	if err != nil {
		return nil, err
	}
	if state != nil {
		s.user = state.User
		s.preferences = state.Preferences
		s.currentID = state.CurrentThreadID
		for _, t := range state.Threads {
			s.threads[t.ID] = t
		}
	}
	return s, nil
}

// Close flushes nothing (every mutation is already written through) and
// closes the persister.
func (s *Store) Close() error {
	return s.persist.Close()
}

// Subscribe registers fn to run after every mutation. The returned
// function unsubscribes. Callbacks run outside the store lock.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// CreateThread allocates a new thread seeded with one system message,
// inserts it into the collection and marks it current. Never fails.
func (s *Store) CreateThread(title, model string) models.Thread {
	now := time.Now()
	if title == "" {
		title = DefaultTitle
	}
	if model == "" {
		model = s.defaultModel
	}
	thread := models.Thread{
		ID:        models.NewID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.Message{models.NewTextMessage(models.RoleSystem, DefaultSystemPrompt)},
		Model:     model,
	}

	s.mu.Lock()
	s.threads[thread.ID] = thread
	s.currentID = thread.ID
	s.writeThrough()
	s.mu.Unlock()

	s.notifySubscribers()
	return thread.Clone()
}

// GetThread returns a copy of the thread, or false if it does not exist.
func (s *Store) GetThread(id string) (models.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return models.Thread{}, false
	}
	return t.Clone(), true
}

// ThreadUpdate names the fields UpdateThread may change. Nil fields are
// left untouched.
type ThreadUpdate struct {
	Title *string
	Model *string
}

// UpdateThread merges the supplied fields over an existing thread and
// refreshes its updated timestamp. No-op if the thread is absent.
func (s *Store) UpdateThread(id string, update ThreadUpdate) {
	s.mu.Lock()
	t, ok := s.threads[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if update.Title != nil {
		t.Title = *update.Title
	}
	if update.Model != nil {
		t.Model = *update.Model
	}
	t.UpdatedAt = time.Now()
	s.threads[id] = t
	s.writeThrough()
	s.mu.Unlock()

	s.notifySubscribers()
}

// DeleteThread removes the thread. If it was current, the current-thread
// pointer is cleared. Irreversible.
func (s *Store) DeleteThread(id string) {
	s.mu.Lock()
	if _, ok := s.threads[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.threads, id)
	if s.currentID == id {
		s.currentID = ""
	}
	s.writeThrough()
	s.mu.Unlock()

	s.notifySubscribers()
}

// SetCurrentThread sets the pointer without existence validation; the
// caller is responsible for pointing it at a real thread.
func (s *Store) SetCurrentThread(id string) {
	s.mu.Lock()
	s.currentID = id
	s.writeThrough()
	s.mu.Unlock()

	s.notifySubscribers()
}

// CurrentThreadID returns the current-thread pointer, empty if unset.
func (s *Store) CurrentThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// UpdateThreadMessages replaces a thread's message sequence wholesale and
// refreshes the updated timestamp. This is the sole message write path;
// the replacement is atomic, the store never holds a partially applied
// sequence. No-op if the thread is absent.
func (s *Store) UpdateThreadMessages(id string, messages []models.Message) {
	s.mu.Lock()
	t, ok := s.threads[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.Messages = models.CloneMessages(messages)
	t.UpdatedAt = time.Now()
	s.threads[id] = t
	s.writeThrough()
	s.mu.Unlock()

	s.notifySubscribers()
}

// GetThreadMessages returns a copy of the thread's message sequence,
// empty if the thread does not exist.
func (s *Store) GetThreadMessages(id string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil
	}
	return models.CloneMessages(t.Messages)
}

// GetAllThreads returns all threads ordered most-recently-updated first.
func (s *Store) GetAllThreads() []models.Thread {
	s.mu.RLock()
	out := make([]models.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// ClearAllThreads removes every thread and clears the current pointer.
func (s *Store) ClearAllThreads() {
	s.mu.Lock()
	s.threads = make(map[string]models.Thread)
	s.currentID = ""
	s.writeThrough()
	s.mu.Unlock()

	s.notifySubscribers()
}

// SetUser merges profile fields over the stored user.
func (s *Store) SetUser(user models.User) {
	s.mu.Lock()
	if user.ID != "" {
		s.user.ID = user.ID
	}
	if user.Email != "" {
		s.user.Email = user.Email
	}
	if user.Name != "" {
		s.user.Name = user.Name
	}
	if user.Avatar != "" {
		s.user.Avatar = user.Avatar
	}
	s.writeThrough()
	s.mu.Unlock()

	s.notifySubscribers()
}

// User returns the stored profile.
func (s *Store) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// UpdatePreferences replaces the stored preferences.
func (s *Store) UpdatePreferences(p models.Preferences) {
	s.mu.Lock()
	s.preferences = p
	s.writeThrough()
	s.mu.Unlock()

	s.notifySubscribers()
}

// Preferences returns the stored preferences.
func (s *Store) Preferences() models.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preferences
}

// writeThrough persists the durable subset of the state. Called with the
// write lock held. Persistence failures are logged, never propagated:
// the in-memory state remains authoritative for the session.
func (s *Store) writeThrough() {
	state := State{
		SchemaVersion:   SchemaVersion,
		User:            s.user,
		Preferences:     s.preferences,
		CurrentThreadID: s.currentID,
		Threads:         make([]models.Thread, 0, len(s.threads)),
	}
	for _, t := range s.threads {
		state.Threads = append(state.Threads, t)
	}
	if err := s.persist.Save(state); err != nil {
		s.logger.Error("persist state failed", "error", err)
	}
}

func (s *Store) notifySubscribers() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
