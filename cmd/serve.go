package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samsaffron/chatstream/internal/serve"
	"github.com/samsaffron/chatstream/internal/sse"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the chat API: event-stream and websocket turns, session
preferences and history, persisted conversations, uploads, /health and
/metrics.

Examples:
  chatstream serve
  chatstream serve --addr 127.0.0.1:9000
  CHATSTREAM_SERVER_TOKEN=secret chatstream serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics := serve.NewMetrics()
	bridge := sse.NewBridge(sse.Options{
		QueueSize:     cfg.Server.QueueSize,
		Heartbeat:     cfg.Server.Heartbeat,
		MaxConcurrent: int64(cfg.Server.MaxConcurrentStreams),
		Logger:        a.logger,
		Observer:      metrics,
	})
	srv, err := serve.New(serve.Options{
		Config:      cfg.Server,
		Temperature: cfg.Temperature,
		Coordinator: a.coordinator,
		Bridge:      bridge,
		Index:       a.index,
		Metrics:     metrics,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, err := srv.Start()
	if err != nil {
		return err
	}
	a.logger.Info("chatstream ready",
		"version", Version, "addr", addr, "default_backend", a.registry.Default(), "backends", a.registry.Keys(),
		"storage", cfg.Storage.Enabled, "retrieval", a.index.Enabled())

	<-ctx.Done()
	a.logger.Info("shutting down")
	if err := srv.Stop(context.Background()); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	return nil
}
