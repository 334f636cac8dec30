package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parley/internal/chat"
	"github.com/raphaelgruber/parley/internal/llm"
	"github.com/raphaelgruber/parley/internal/models"
	"github.com/raphaelgruber/parley/internal/store"
)

var chatThreadID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session. Responses stream as they are
generated; Ctrl+C cancels the response in flight without ending the
session.

Slash commands inside the session:
  /edit <n> <text>   rewrite message n and replay from there
  /delete <n>        remove message n
  /regen             regenerate the last response
  /version <n>       switch the last response to retained version n
  /versions          list retained versions of the last response
  /history           print the whole thread
  /quit              leave the session

Examples:
  parley chat
  parley chat --thread 4f8a1c`,
}

func init() {
	chatCmd.RunE = runChat
	chatCmd.Flags().StringVarP(&chatThreadID, "thread", "t", "", "resume an existing thread (default: current or new)")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sess, err := getSession(ctx)
	if err != nil {
		return err
	}

	thread, err := resolveThread(chatThreadID)
	if err != nil {
		return err
	}
	threads.SetCurrentThread(thread.ID)

	theme := defaultTheme
	fmt.Printf("%s %s\n", theme.promptStyle().Render("Thread:"), thread.Title)
	fmt.Println(theme.hintStyle().Render("Type a message, /help for commands, /quit to leave."))

	// Ctrl+C cancels the streaming response, a second one exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if !sess.Cancel(thread.ID) {
				fmt.Println()
				os.Exit(0)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print(theme.promptStyle().Render("> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runSlashCommand(ctx, sess, thread.ID, line, theme); quit {
				return nil
			}
			continue
		}

		streamExchange(theme, func() error {
			return sess.Submit(ctx, thread.ID, line, nil, renderChunks(theme))
		})
		drainNotifications(theme)
	}
}

// resolveThread picks the thread to chat in: an explicit ID, the
// current one, or a fresh thread.
func resolveThread(id string) (models.Thread, error) {
	if id == "" {
		id = threads.CurrentThreadID()
	}
	if id != "" {
		if thread, ok := threads.GetThread(id); ok {
			return thread, nil
		}
		if chatThreadID != "" {
			return models.Thread{}, fmt.Errorf("thread %s not found", id)
		}
	}
	return threads.CreateThread("", cfg.LLMModel), nil
}

// renderChunks prints streamed chunks as they arrive. Reasoning output
// is dimmed so it reads apart from the answer; tool activity prints on
// its own hint lines.
func renderChunks(theme Theme) chat.SubmitOption {
	return chat.OnChunk(func(c llm.Chunk) {
		switch c.Type {
		case models.PartReasoning:
			fmt.Print(theme.reasoningStyle().Render(c.Text))
		case models.PartToolCall:
			fmt.Println(theme.hintStyle().Render("⚙ " + c.Text))
		case models.PartToolResult:
			fmt.Println(theme.hintStyle().Render("  → " + c.Text))
		default:
			fmt.Print(c.Text)
		}
	})
}

// streamExchange runs one streaming call and prints the outcome line.
func streamExchange(theme Theme, run func() error) {
	err := run()
	fmt.Println()
	if err != nil {
		fmt.Println(theme.errorStyle().Render("✗ " + err.Error()))
	}
}

// drainNotifications prints and clears pending store notifications.
func drainNotifications(theme Theme) {
	for _, n := range threads.Notifications() {
		switch n.Kind {
		case store.NotifyError:
			fmt.Println(theme.errorStyle().Render(n.Message))
		case store.NotifySuccess:
			fmt.Println(theme.successStyle().Render(n.Message))
		default:
			fmt.Println(theme.hintStyle().Render(n.Message))
		}
	}
	threads.ClearNotifications()
}

func runSlashCommand(ctx context.Context, sess *chat.Session, threadID, line string, theme Theme) (quit bool) {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		fmt.Println(chatCmd.Long)

	case "/history":
		printHistory(threadID, theme)

	case "/edit":
		if len(rest) < 2 {
			fmt.Println(theme.hintStyle().Render("usage: /edit <n> <new text>"))
			return false
		}
		msg, ok := messageByIndex(threadID, rest[0])
		if !ok {
			fmt.Println(theme.errorStyle().Render("no such message"))
			return false
		}
		text := strings.TrimSpace(strings.TrimPrefix(line, cmd))
		text = strings.TrimSpace(strings.TrimPrefix(text, rest[0]))
		streamExchange(theme, func() error {
			return sess.EditMessage(ctx, threadID, msg.ID, text, renderChunks(theme))
		})

	case "/delete":
		if len(rest) != 1 {
			fmt.Println(theme.hintStyle().Render("usage: /delete <n>"))
			return false
		}
		msg, ok := messageByIndex(threadID, rest[0])
		if !ok {
			fmt.Println(theme.errorStyle().Render("no such message"))
			return false
		}
		if err := sess.DeleteMessage(threadID, msg.ID); err != nil {
			fmt.Println(theme.errorStyle().Render(err.Error()))
			return false
		}
		fmt.Println(theme.successStyle().Render("✓ deleted"))

	case "/regen":
		streamExchange(theme, func() error {
			return sess.RegenerateLastResponse(ctx, threadID, renderChunks(theme))
		})

	case "/versions":
		msg, ok := lastAssistant(threadID)
		if !ok {
			fmt.Println(theme.hintStyle().Render("no assistant response yet"))
			return false
		}
		versions := sess.Versions(msg.ID)
		if len(versions) == 0 {
			fmt.Println(theme.hintStyle().Render("no retained versions"))
			return false
		}
		for i, v := range versions {
			fmt.Printf("%d. %s\n", i+1, firstLine(v.Content))
		}
		fmt.Printf("%d. %s (current)\n", len(versions)+1, firstLine(msg.Content))

	case "/version":
		if len(rest) != 1 {
			fmt.Println(theme.hintStyle().Render("usage: /version <n>"))
			return false
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Println(theme.hintStyle().Render("usage: /version <n>"))
			return false
		}
		msg, ok := lastAssistant(threadID)
		if !ok {
			fmt.Println(theme.hintStyle().Render("no assistant response yet"))
			return false
		}
		if err := sess.SwitchVersion(threadID, msg.ID, n); err != nil {
			fmt.Println(theme.errorStyle().Render(err.Error()))
			return false
		}
		msg, _ = lastAssistant(threadID)
		fmt.Println(msg.Content)

	default:
		fmt.Println(theme.hintStyle().Render("unknown command, try /help"))
	}
	return false
}

// printHistory lists the thread's messages with 1-based indexes, the
// same indexes /edit and /delete accept.
func printHistory(threadID string, theme Theme) {
	for i, m := range threads.GetThreadMessages(threadID) {
		label := fmt.Sprintf("%d. [%s]", i+1, m.Role)
		fmt.Printf("%s %s\n", theme.promptStyle().Render(label), firstLine(m.Content))
		for _, a := range m.Attachments {
			fmt.Printf("   %s\n", theme.hintStyle().Render("attachment: "+a.Name))
		}
		for _, p := range m.Parts {
			if p.Type == models.PartToolCall && p.ToolCall != nil {
				fmt.Printf("   %s\n", theme.hintStyle().Render("tool: "+p.ToolCall.Name+" "+p.ToolCall.Args))
			}
		}
	}
}

func messageByIndex(threadID, raw string) (models.Message, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return models.Message{}, false
	}
	msgs := threads.GetThreadMessages(threadID)
	if n < 1 || n > len(msgs) {
		return models.Message{}, false
	}
	return msgs[n-1], true
}

func lastAssistant(threadID string) (models.Message, bool) {
	msgs := threads.GetThreadMessages(threadID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant {
			return msgs[i], true
		}
	}
	return models.Message{}, false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
