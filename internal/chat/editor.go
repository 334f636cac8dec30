package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/parley/internal/llm"
	"github.com/raphaelgruber/parley/internal/models"
)

// ErrNoMessage means the referenced message does not exist in the thread.
var ErrNoMessage = errors.New("message not found")

// ErrNoVersion means the requested version index is out of range.
var ErrNoVersion = errors.New("no such version")

// EditMessage rewrites a user message and replays the conversation from
// that point. Everything after the edited message is discarded for good,
// along with any retained versions of the discarded messages, then a
// fresh assistant response is streamed against the truncated history.
func (s *Session) EditMessage(ctx context.Context, threadID, messageID, text string, opts ...SubmitOption) error {
	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, release, err := s.acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer release()

	// History reads happen under the slot so the commit below cannot
	// clobber an exchange that settled in between.
	thread, ok := s.store.GetThread(threadID)
	if !ok {
		return fmt.Errorf("%w: thread %s", ErrNoMessage, threadID)
	}
	idx := indexOf(thread.Messages, messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNoMessage, messageID)
	}

	s.dropVersions(thread.Messages[idx+1:])

	history := thread.Messages[:idx+1]
	history[idx].Content = text
	history[idx].Parts = []models.Part{models.TextPart(text)}
	s.store.UpdateThreadMessages(threadID, history)

	assistant, err := s.stream(ctx, thread.Model, history, models.NewID(), cfg.onChunk)
	if err != nil {
		s.reportFailure(threadID, err)
		return err
	}

	s.store.UpdateThreadMessages(threadID, append(history, assistant))
	return nil
}

// DeleteMessage removes a single message from the thread. Surrounding
// messages keep their order; retained versions of the removed message
// are dropped. Fails with ErrBusy while a response is streaming.
func (s *Session) DeleteMessage(threadID, messageID string) error {
	_, release, err := s.acquire(context.Background(), threadID)
	if err != nil {
		return err
	}
	defer release()

	thread, ok := s.store.GetThread(threadID)
	if !ok {
		return fmt.Errorf("%w: thread %s", ErrNoMessage, threadID)
	}
	idx := indexOf(thread.Messages, messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNoMessage, messageID)
	}

	s.dropVersions(thread.Messages[idx : idx+1])
	history := append(thread.Messages[:idx], thread.Messages[idx+1:]...)
	s.store.UpdateThreadMessages(threadID, history)
	return nil
}

// RegenerateLastResponse streams a replacement for the thread's last
// assistant message, keeping the same message ID. The outgoing content
// is archived as a retained version immediately before the overwrite,
// so it only enters history once the replacement has fully settled. A
// failed regeneration leaves the message untouched.
func (s *Session) RegenerateLastResponse(ctx context.Context, threadID string, opts ...SubmitOption) error {
	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, release, err := s.acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer release()

	thread, ok := s.store.GetThread(threadID)
	if !ok {
		return fmt.Errorf("%w: thread %s", ErrNoMessage, threadID)
	}
	last := len(thread.Messages) - 1
	if last < 0 || thread.Messages[last].Role != models.RoleAssistant {
		return ErrNotAssistant
	}
	target := thread.Messages[last]

	history := thread.Messages[:last]
	assistant, err := s.stream(ctx, thread.Model, history, target.ID, cfg.onChunk)
	if err != nil {
		s.reportFailure(threadID, err)
		return err
	}

	s.archive(target)
	s.store.UpdateThreadMessages(threadID, append(history, assistant))
	return nil
}

// SwitchVersion replaces an assistant message's live content with one of
// its retained versions. Versions are addressed 1-based in retention
// order, with one extra trailing index standing for the live content
// itself (selecting it changes nothing). The content being displaced is
// archived first, so switching is never lossy and versions only
// accumulate. An index outside the selectable range fails with
// ErrNoVersion rather than the store's silent-no-op convention, so
// callers can tell a bad index from a switch that changed nothing.
// Fails with ErrBusy while a response is streaming.
func (s *Session) SwitchVersion(threadID, messageID string, version int) error {
	_, release, err := s.acquire(context.Background(), threadID)
	if err != nil {
		return err
	}
	defer release()

	thread, ok := s.store.GetThread(threadID)
	if !ok {
		return fmt.Errorf("%w: thread %s", ErrNoMessage, threadID)
	}
	idx := indexOf(thread.Messages, messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNoMessage, messageID)
	}
	msg := thread.Messages[idx]
	if msg.Role != models.RoleAssistant {
		return ErrNotAssistant
	}

	s.mu.Lock()
	stored := s.versions[messageID]
	if version < 1 || version > len(stored)+1 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrNoVersion, version, len(stored)+1)
	}
	if version == len(stored)+1 {
		// The index past the retained list addresses the live content.
		s.mu.Unlock()
		return nil
	}
	chosen := stored[version-1]
	s.mu.Unlock()

	s.archive(msg)

	history := thread.Messages
	history[idx].Content = chosen.Content
	history[idx].Parts = models.CloneParts(chosen.Parts)
	s.store.UpdateThreadMessages(threadID, history)
	return nil
}

// Versions returns the retained versions of a message, oldest first.
func (s *Session) Versions(messageID string) []models.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.versions[messageID]
	out := make([]models.Version, 0, len(stored))
	for _, v := range stored {
		out = append(out, models.Version{
			Content: v.Content,
			Parts:   models.CloneParts(v.Parts),
		})
	}
	return out
}

// StreamForHistory exposes one raw exchange against an arbitrary
// history without touching any thread. Used by stateless surfaces.
func (s *Session) StreamForHistory(ctx context.Context, model string, history []models.Message, onChunk func(llm.Chunk)) (models.Message, error) {
	return s.stream(ctx, model, history, models.NewID(), onChunk)
}

// archive retains a message's current content as a version, skipping
// states that are already retained so version cycling never duplicates.
func (s *Session) archive(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.versions[msg.ID]
	for _, v := range stored {
		if v.Content == msg.Content && models.PartsEqual(v.Parts, msg.Parts) {
			return
		}
	}
	s.versions[msg.ID] = append(stored, models.Version{
		Content: msg.Content,
		Parts:   models.CloneParts(msg.Parts),
	})
}

// dropVersions forgets retained versions for every listed message.
func (s *Session) dropVersions(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		delete(s.versions, m.ID)
	}
}

func indexOf(msgs []models.Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
