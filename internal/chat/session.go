// Package chat drives model exchanges for chat threads: it submits user
// messages, reconciles streamed assistant output into the thread store,
// and applies destructive history edits. All writes go through the
// store's whole-sequence replacement, so the durable history never holds
// a half-streamed response.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/parley/internal/llm"
	"github.com/raphaelgruber/parley/internal/metrics"
	"github.com/raphaelgruber/parley/internal/models"
	"github.com/raphaelgruber/parley/internal/parser"
	"github.com/raphaelgruber/parley/internal/retry"
	"github.com/raphaelgruber/parley/internal/store"
)

// Sentinel errors surfaced to callers. Both are user-visible and
// non-fatal to the session.
var (
	// ErrBusy means a response is already streaming for this thread.
	// Submissions are single-flight per thread; a second one is
	// rejected, never interleaved.
	ErrBusy = errors.New("thread busy")

	// ErrNotAssistant means regenerate was asked for a thread whose
	// last message is not an assistant response.
	ErrNotAssistant = errors.New("last message is not an assistant response")
)

// Session coordinates streaming exchanges against one store. Retained
// message versions live here, in memory: they are bounded by process
// lifetime and deliberately not persisted.
type Session struct {
	store     *store.Store
	model     llm.ChatModel
	policy    retry.Policy
	logger    *slog.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	versions map[string][]models.Version
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p retry.Policy) SessionOption {
	return func(s *Session) { s.policy = p }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession builds a session over the store and chat model.
func NewSession(st *store.Store, model llm.ChatModel, opts ...SessionOption) *Session {
	s := &Session{
		store:     st,
		model:     model,
		policy:    retry.Policy{Retryable: llm.Retryable},
		logger:    slog.Default(),
		collector: metrics.NewCollector(),
		inflight:  make(map[string]context.CancelFunc),
		versions:  make(map[string][]models.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Retryable == nil {
		s.policy.Retryable = llm.Retryable
	}
	return s
}

// SubmitOption tunes one submission.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	onChunk func(llm.Chunk)
}

// OnChunk registers a callback invoked for every streamed chunk, used
// by interactive surfaces to render tokens as they arrive.
func OnChunk(fn func(llm.Chunk)) SubmitOption {
	return func(c *submitConfig) { c.onChunk = fn }
}

// Submit runs one full exchange: append the user message, stream the
// assistant response, and commit the settled sequence. Empty input with
// no uploads is a silent no-op, as is an unknown thread. The user
// message is committed before the model call and survives a failed
// exchange; partially streamed assistant text is discarded on error.
func (s *Session) Submit(ctx context.Context, threadID, text string, uploads []models.Upload, opts ...SubmitOption) error {
	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	plain := strings.TrimSpace(parser.Flatten(text))
	if plain == "" && len(uploads) == 0 {
		return nil
	}

	ctx, release, err := s.acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer release()

	// Snapshot the history only while holding the slot: a snapshot taken
	// earlier could miss a response settled by a previous exchange and
	// clobber it on commit.
	thread, ok := s.store.GetThread(threadID)
	if !ok {
		return nil
	}

	// First user message: synthesize the title immediately, without
	// waiting for the model.
	if len(thread.Messages) == 1 {
		title := Title(plain)
		s.store.UpdateThread(threadID, store.ThreadUpdate{Title: &title})
	}

	userMsg := models.NewTextMessage(models.RoleUser, plain)
	userMsg.Attachments = models.AttachmentsFromUploads(uploads)
	history := append(thread.Messages, userMsg)
	s.store.UpdateThreadMessages(threadID, history)

	assistant, err := s.stream(ctx, thread.Model, history, models.NewID(), cfg.onChunk)
	if err != nil {
		s.reportFailure(threadID, err)
		return err
	}

	s.store.UpdateThreadMessages(threadID, append(history, assistant))
	return nil
}

// Metrics exposes the session's runtime statistics collector.
func (s *Session) Metrics() *metrics.Collector {
	return s.collector
}

// Cancel aborts the in-flight stream for the thread, if any, and
// reports whether one was running.
func (s *Session) Cancel(threadID string) bool {
	s.mu.Lock()
	cancel, ok := s.inflight[threadID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Busy reports whether a stream is in flight for the thread.
func (s *Session) Busy(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[threadID]
	return ok
}

// acquire takes the per-thread single-flight slot and returns a
// cancellable context for the exchange.
func (s *Session) acquire(ctx context.Context, threadID string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[threadID]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrBusy, threadID)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.inflight[threadID] = cancel
	release := func() {
		s.mu.Lock()
		delete(s.inflight, threadID)
		s.mu.Unlock()
		cancel()
	}
	return ctx, release, nil
}

// stream runs the retry-wrapped model call and materializes the settled
// assistant message under the given ID. Partial output from a failed
// attempt never leaks: each attempt accumulates from scratch and only a
// clean completion produces a message.
func (s *Session) stream(ctx context.Context, model string, history []models.Message, messageID string, onChunk func(llm.Chunk)) (models.Message, error) {
	policy := s.policy
	retryable := policy.Retryable
	policy.Retryable = func(err error) bool {
		if errors.Is(err, context.Canceled) {
			return false
		}
		return retryable(err)
	}
	policy.OnRetry = func(attempt int, err error) {
		s.logger.Warn("retrying model call", "attempt", attempt, "error", err)
		s.collector.RecordRetry(metrics.OpLLMStream)
		if attempt == 1 {
			s.store.Notify(store.NotifyWarning, "Connection trouble, retrying…")
		}
	}

	start := time.Now()
	var result *llm.Result
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		result, err = s.model.Stream(ctx, model, history, func(c llm.Chunk) error {
			if onChunk != nil {
				onChunk(c)
			}
			return ctx.Err()
		})
		return err
	})
	if err != nil {
		s.collector.RecordFailure(metrics.OpLLMStream)
		return models.Message{}, err
	}
	s.collector.RecordTiming(metrics.OpLLMStream, time.Since(start))

	return models.Message{
		ID:      messageID,
		Role:    models.RoleAssistant,
		Content: result.Content,
		Parts:   models.CloneParts(result.Parts),
	}, nil
}

// reportFailure converts an upstream error into the user-visible
// transient notification required at this boundary. Errors never
// propagate unhandled past the controller.
func (s *Session) reportFailure(threadID string, err error) {
	if errors.Is(err, context.Canceled) {
		s.logger.Info("stream cancelled", "thread", threadID)
		return
	}
	s.logger.Error("model exchange failed", "thread", threadID, "error", err)
	switch llm.Classify(err) {
	case llm.KindAuth:
		s.store.Notify(store.NotifyError, "Authentication failed. Check your API credentials and configuration.")
	case llm.KindRateLimited:
		s.store.Notify(store.NotifyError, "The model is in high demand or rate limited. Try again in a moment.")
	case llm.KindModelNotFound:
		s.store.Notify(store.NotifyError, "The selected model is unavailable. Pick a different model.")
	case llm.KindUnknown:
		s.store.Notify(store.NotifyError, "Something went wrong while talking to the model. Please try again.")
	}
}
