package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parley/internal/chat"
	"github.com/raphaelgruber/parley/internal/llm"
	"github.com/raphaelgruber/parley/internal/server"
	"github.com/raphaelgruber/parley/internal/upload"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Long: `Run the HTTP gateway so browser and scripting clients can use the
chat threads. Responses stream as server-sent events.

Set PARLEY_SERVER_TOKEN to require a bearer token on every request.

Examples:
  parley serve
  parley serve --addr 0.0.0.0:8374`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: configured server_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return err
	}
	session := chat.NewSession(threads, model, chat.WithSessionLogger(logger))

	var uploader upload.Uploader
	if up, err := upload.NewS3Uploader(ctx, cfg, logger); err == nil {
		uploader = up
	} else if !errors.Is(err, upload.ErrNotConfigured) {
		return err
	} else {
		logger.Warn("object storage not configured, uploads disabled")
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}

	srv := server.New(addr, cfg.ServerToken, threads, session, uploader, logger)
	return srv.Run(ctx)
}
