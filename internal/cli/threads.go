package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var newThreadModel string

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List and manage chat threads",
	Long: `List and manage chat threads.

Subcommands:
  list    List threads (default)
  new     Create a thread and make it current
  show    Print a thread's messages
  delete  Delete a thread
  clear   Delete all threads

Examples:
  parley threads
  parley threads new --model claude-sonnet-4-5
  parley threads show 4f8a1c
  parley threads delete 4f8a1c`,
	RunE: runListThreads,
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads",
	RunE:  runListThreads,
}

var threadsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a thread and make it current",
	RunE:  runNewThread,
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a thread's messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowThread,
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteThread,
}

var threadsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all threads",
	RunE:  runClearThreads,
}

func init() {
	threadsNewCmd.Flags().StringVarP(&newThreadModel, "model", "m", "", "model for the new thread (default: configured model)")

	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsNewCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
	threadsCmd.AddCommand(threadsClearCmd)
}

func runListThreads(cmd *cobra.Command, args []string) error {
	all := threads.GetAllThreads()
	if len(all) == 0 {
		fmt.Println("No threads yet. Start one with 'parley chat'.")
		return nil
	}

	current := threads.CurrentThreadID()
	fmt.Printf("Threads (%d):\n\n", len(all))
	for _, t := range all {
		marker := " "
		if t.ID == current {
			marker = "*"
		}
		fmt.Printf("%s %s  %s [%s]\n", marker, t.ID, t.Title, t.Model)
		if verbose {
			fmt.Printf("    %d messages, updated %s\n", len(t.Messages), t.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

func runNewThread(cmd *cobra.Command, args []string) error {
	model := newThreadModel
	if model == "" {
		model = cfg.LLMModel
	}
	thread := threads.CreateThread("", model)
	fmt.Printf("Created thread %s [%s]\n", thread.ID, thread.Model)
	return nil
}

func runShowThread(cmd *cobra.Command, args []string) error {
	thread, ok := threads.GetThread(args[0])
	if !ok {
		return fmt.Errorf("thread %s not found", args[0])
	}

	fmt.Printf("%s [%s]\n\n", thread.Title, thread.Model)
	for _, m := range thread.Messages {
		fmt.Printf("[%s]\n%s\n\n", m.Role, m.Content)
		for _, a := range m.Attachments {
			fmt.Printf("  attachment: %s (%s)\n", a.Name, a.URL)
		}
	}
	return nil
}

func runDeleteThread(cmd *cobra.Command, args []string) error {
	if _, ok := threads.GetThread(args[0]); !ok {
		return fmt.Errorf("thread %s not found", args[0])
	}
	threads.DeleteThread(args[0])
	fmt.Printf("Deleted thread %s\n", args[0])
	return nil
}

func runClearThreads(cmd *cobra.Command, args []string) error {
	n := len(threads.GetAllThreads())
	threads.ClearAllThreads()
	fmt.Printf("Deleted %d threads\n", n)
	return nil
}
