package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/parley/internal/llm"
	"github.com/raphaelgruber/parley/internal/models"
	"github.com/raphaelgruber/parley/internal/retry"
	"github.com/raphaelgruber/parley/internal/store"
)

// fakeModel is a scripted ChatModel. Each call pops the next script
// entry; an entry either fails or streams its text in two chunks.
type fakeModel struct {
	mu      sync.Mutex
	script  []fakeTurn
	calls   int
	history [][]models.Message
	block   chan struct{} // when set, Stream waits here before returning
}

type fakeTurn struct {
	text  string
	parts []models.Part // result parts; defaults to a single text part
	err   error
}

func (f *fakeModel) Stream(ctx context.Context, model string, history []models.Message, fn func(llm.Chunk) error) (*llm.Result, error) {
	f.mu.Lock()
	f.calls++
	f.history = append(f.history, models.CloneMessages(history))
	var turn fakeTurn
	if len(f.script) > 0 {
		turn = f.script[0]
		f.script = f.script[1:]
	} else {
		turn = fakeTurn{text: "ok"}
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if turn.err != nil {
		return nil, turn.err
	}

	half := len(turn.text) / 2
	for _, piece := range []string{turn.text[:half], turn.text[half:]} {
		if piece == "" {
			continue
		}
		if err := fn(llm.Chunk{Type: models.PartText, Text: piece}); err != nil {
			return nil, err
		}
	}
	parts := models.CloneParts(turn.parts)
	if parts == nil {
		parts = []models.Part{models.TextPart(turn.text)}
	}
	return &llm.Result{Content: turn.text, Parts: parts}, nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestSession(t *testing.T, model llm.ChatModel) (*Session, *store.Store, string) {
	t.Helper()
	st, err := store.Open(store.NewMemoryPersister())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	thread := st.CreateThread("", "gpt-4o")

	policy := retry.Policy{MaxRetries: 3, BaseDelay: time.Microsecond, Retryable: llm.Retryable}
	sess := NewSession(st, model, WithRetryPolicy(policy))
	return sess, st, thread.ID
}

func TestSubmitAppendsUserAndAssistant(t *testing.T) {
	model := &fakeModel{script: []fakeTurn{{text: "Hi there!"}}}
	sess, st, id := newTestSession(t, model)

	var streamed strings.Builder
	err := sess.Submit(context.Background(), id, "Hello, how are you today? Nice weather.", nil,
		OnChunk(func(c llm.Chunk) { streamed.WriteString(c.Text) }))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	msgs := st.GetThreadMessages(id)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3 (system, user, assistant)", len(msgs))
	}
	if msgs[1].Role != models.RoleUser || msgs[2].Role != models.RoleAssistant {
		t.Errorf("unexpected roles %q, %q", msgs[1].Role, msgs[2].Role)
	}
	if msgs[2].Content != "Hi there!" {
		t.Errorf("assistant content = %q", msgs[2].Content)
	}
	if streamed.String() != "Hi there!" {
		t.Errorf("streamed %q, want full response", streamed.String())
	}

	thread, _ := st.GetThread(id)
	if thread.Title != "Hello, how are you today" {
		t.Errorf("title = %q", thread.Title)
	}
}

func TestSubmitEmptyInputIsNoOp(t *testing.T) {
	model := &fakeModel{}
	sess, st, id := newTestSession(t, model)

	if err := sess.Submit(context.Background(), id, "   \n ", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := len(st.GetThreadMessages(id)); got != 1 {
		t.Errorf("got %d messages, want only the system seed", got)
	}
	if model.callCount() != 0 {
		t.Errorf("model called %d times, want 0", model.callCount())
	}
}

func TestSubmitUploadsOnlyStillSends(t *testing.T) {
	model := &fakeModel{script: []fakeTurn{{text: "Nice picture."}}}
	sess, st, id := newTestSession(t, model)

	uploads := []models.Upload{{Name: "cat.png", ContentType: "image/png", URL: "https://files.test/cat.png"}}
	if err := sess.Submit(context.Background(), id, "", uploads); err != nil {
		t.Fatalf("submit: %v", err)
	}

	msgs := st.GetThreadMessages(id)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if len(msgs[1].Attachments) != 1 || msgs[1].Attachments[0].Name != "cat.png" {
		t.Errorf("attachments = %+v", msgs[1].Attachments)
	}
}

func TestSubmitFailureKeepsUserMessage(t *testing.T) {
	boom := errors.New("stream exploded")
	model := &fakeModel{script: []fakeTurn{{err: boom}, {err: boom}, {err: boom}, {err: boom}}}
	sess, st, id := newTestSession(t, model)

	err := sess.Submit(context.Background(), id, "Does this survive a failure?", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}

	msgs := st.GetThreadMessages(id)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want system + user", len(msgs))
	}
	if msgs[1].Role != models.RoleUser {
		t.Errorf("surviving message role = %q", msgs[1].Role)
	}
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			t.Error("partial assistant output leaked into history")
		}
	}
	if len(st.Notifications()) == 0 {
		t.Error("expected a user-visible notification for the failure")
	}
}

func TestSubmitRetriesTransientFailure(t *testing.T) {
	model := &fakeModel{script: []fakeTurn{
		{err: errors.New("status 429: rate limit exceeded")},
		{text: "Recovered."},
	}}
	sess, st, id := newTestSession(t, model)

	if err := sess.Submit(context.Background(), id, "Try again please.", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if model.callCount() != 2 {
		t.Errorf("model called %d times, want 2", model.callCount())
	}
	msgs := st.GetThreadMessages(id)
	if msgs[len(msgs)-1].Content != "Recovered." {
		t.Errorf("final content = %q", msgs[len(msgs)-1].Content)
	}
}

func TestSubmitAuthFailureNotRetried(t *testing.T) {
	model := &fakeModel{script: []fakeTurn{
		{err: fmt.Errorf("call model: %w", llm.ErrAuth)},
		{text: "should never be reached"},
	}}
	sess, _, id := newTestSession(t, model)

	err := sess.Submit(context.Background(), id, "Broken credentials.", nil)
	if !errors.Is(err, llm.ErrAuth) {
		t.Fatalf("err = %v, want %v", err, llm.ErrAuth)
	}
	if model.callCount() != 1 {
		t.Errorf("model called %d times, want exactly 1", model.callCount())
	}
}

func TestSubmitUnknownThreadIsNoOp(t *testing.T) {
	model := &fakeModel{}
	sess, _, _ := newTestSession(t, model)

	if err := sess.Submit(context.Background(), "nope", "Hello there.", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if model.callCount() != 0 {
		t.Errorf("model called %d times, want 0", model.callCount())
	}
}

func TestSubmitSingleFlight(t *testing.T) {
	block := make(chan struct{})
	model := &fakeModel{block: block, script: []fakeTurn{{text: "slow answer"}}}
	sess, _, id := newTestSession(t, model)

	done := make(chan error, 1)
	go func() {
		done <- sess.Submit(context.Background(), id, "First message in flight.", nil)
	}()

	waitFor(t, func() bool { return sess.Busy(id) })

	err := sess.Submit(context.Background(), id, "Second while busy.", nil)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("concurrent submit err = %v, want ErrBusy", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if sess.Busy(id) {
		t.Error("thread still marked busy after completion")
	}
}

func TestSubmitCarriesToolParts(t *testing.T) {
	model := &fakeModel{script: []fakeTurn{{
		text: "2+3 is 5.",
		parts: []models.Part{
			{Type: models.PartToolCall, ToolCall: &models.ToolCall{ID: "c1", Name: "calculate", Args: `{"expression":"2+3"}`}},
			{Type: models.PartToolResult, ToolResult: &models.ToolResult{ID: "c1", Name: "calculate", Result: `{"result":"5"}`}},
			models.TextPart("2+3 is 5."),
		},
	}}}
	sess, st, id := newTestSession(t, model)

	if err := sess.Submit(context.Background(), id, "What is 2+3?", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	msgs := st.GetThreadMessages(id)
	assistant := msgs[len(msgs)-1]
	if len(assistant.Parts) != 3 {
		t.Fatalf("assistant parts = %d, want 3", len(assistant.Parts))
	}
	if assistant.Parts[0].Type != models.PartToolCall || assistant.Parts[0].ToolCall.Name != "calculate" {
		t.Errorf("first part = %+v, want the tool call", assistant.Parts[0])
	}
	if assistant.Parts[1].Type != models.PartToolResult || assistant.Parts[1].ToolResult.Result != `{"result":"5"}` {
		t.Errorf("second part = %+v, want the tool result", assistant.Parts[1])
	}
	if got := models.JoinTextParts(assistant.Parts); got != assistant.Content {
		t.Errorf("text parts %q diverge from content %q", got, assistant.Content)
	}
}

func TestConcurrentSubmissionsPreserveSettledResponses(t *testing.T) {
	model := &fakeModel{}
	sess, st, id := newTestSession(t, model)

	const workers, perWorker = 4, 5
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				text := fmt.Sprintf("Message %d from worker %d.", i, w)
				for {
					err := sess.Submit(context.Background(), id, text, nil)
					if err == nil {
						break
					}
					if !errors.Is(err, ErrBusy) {
						t.Errorf("submit: %v", err)
						return
					}
					time.Sleep(time.Millisecond)
				}
			}
		}(w)
	}
	wg.Wait()

	msgs := st.GetThreadMessages(id)
	if want := 1 + 2*workers*perWorker; len(msgs) != want {
		t.Fatalf("got %d messages, want %d: a settled exchange was lost", len(msgs), want)
	}
	for i := 1; i < len(msgs); i += 2 {
		if msgs[i].Role != models.RoleUser || msgs[i+1].Role != models.RoleAssistant {
			t.Fatalf("messages %d/%d have roles %q/%q, want user/assistant", i, i+1, msgs[i].Role, msgs[i+1].Role)
		}
	}
}

func TestEditorOpsRejectedWhileStreaming(t *testing.T) {
	block := make(chan struct{})
	model := &fakeModel{block: block, script: []fakeTurn{{text: "slow"}}}
	sess, _, id := newTestSession(t, model)

	done := make(chan error, 1)
	go func() {
		done <- sess.Submit(context.Background(), id, "Keep the line busy.", nil)
	}()
	waitFor(t, func() bool { return sess.Busy(id) })

	if err := sess.DeleteMessage(id, "whatever"); !errors.Is(err, ErrBusy) {
		t.Errorf("DeleteMessage err = %v, want ErrBusy", err)
	}
	if err := sess.SwitchVersion(id, "whatever", 1); !errors.Is(err, ErrBusy) {
		t.Errorf("SwitchVersion err = %v, want ErrBusy", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestCancelAbortsStream(t *testing.T) {
	block := make(chan struct{})
	model := &fakeModel{block: block}
	sess, st, id := newTestSession(t, model)

	done := make(chan error, 1)
	go func() {
		done <- sess.Submit(context.Background(), id, "Cancel me please.", nil)
	}()

	waitFor(t, func() bool { return sess.Busy(id) })

	if !sess.Cancel(id) {
		t.Fatal("Cancel reported no stream in flight")
	}
	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// The user message stays; no assistant message was committed.
	msgs := st.GetThreadMessages(id)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if sess.Cancel(id) {
		t.Error("second Cancel should report nothing in flight")
	}
}

func TestSubmitTitleOnlySetOnce(t *testing.T) {
	model := &fakeModel{script: []fakeTurn{{text: "one"}, {text: "two"}}}
	sess, st, id := newTestSession(t, model)

	if err := sess.Submit(context.Background(), id, "First prompt sets the title.", nil); err != nil {
		t.Fatal(err)
	}
	thread, _ := st.GetThread(id)
	first := thread.Title

	if err := sess.Submit(context.Background(), id, "Second prompt must not retitle!", nil); err != nil {
		t.Fatal(err)
	}
	thread, _ = st.GetThread(id)
	if thread.Title != first {
		t.Errorf("title changed from %q to %q on second submit", first, thread.Title)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
