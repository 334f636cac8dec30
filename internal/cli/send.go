package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parley/internal/models"
	"github.com/raphaelgruber/parley/internal/upload"
)

var (
	sendThreadID string
	sendFiles    []string
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the streamed response",
	Long: `Send a single message to a thread and print the streamed response.
Useful for scripting; for a conversation use 'parley chat'.

Files are uploaded to the configured object storage and attached to the
message. Images, PDFs, and plain text up to 10 MB are accepted.

Examples:
  parley send "Summarize the attached report" -f report.pdf
  parley send "What changed since yesterday?" --thread 4f8a1c`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendThreadID, "thread", "t", "", "target thread (default: current or new)")
	sendCmd.Flags().StringSliceVarP(&sendFiles, "file", "f", nil, "attach a file (repeatable)")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	thread, err := resolveThread(sendThreadID)
	if err != nil {
		return err
	}

	var uploads []models.Upload
	if len(sendFiles) > 0 {
		uploads, err = uploadFiles(ctx, sendFiles)
		if err != nil {
			return err
		}
	}

	theme := defaultTheme
	streamExchange(theme, func() error {
		return sess.Submit(ctx, thread.ID, args[0], uploads, renderChunks(theme))
	})
	drainNotifications(theme)
	return nil
}

// uploadFiles reads local files and pushes them to object storage.
func uploadFiles(ctx context.Context, paths []string) ([]models.Upload, error) {
	uploader, err := upload.NewS3Uploader(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init uploads: %w", err)
	}

	files := make([]upload.File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, upload.File{
			Name:        filepath.Base(path),
			ContentType: detectContentType(path, data),
			Data:        data,
		})
	}
	return uploader.Upload(ctx, files)
}
