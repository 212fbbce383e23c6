package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/canvas"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/exportstore"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/store"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		addr         string
		portRetries  int
		sessionTTL   time.Duration
		exportBucket string
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP stdio server and the canvas HTTP server",
		Long: `Run both halves of the bridge: the MCP tool surface on stdio
and the canvas page with its WebSocket channel on HTTP.

When the requested port is taken the server walks forward through a
bounded range of consecutive ports, so several instances can share a
machine.

Examples:
  excalidraw-mcp serve
  excalidraw-mcp serve --addr=localhost:4000
  excalidraw-mcp serve --session-ttl=1h --export-bucket=my-exports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, portRetries, sessionTTL, exportBucket, debug)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:3333", "Canvas HTTP listen address")
	cmd.Flags().IntVar(&portRetries, "port-retries", 10, "Consecutive ports to try when the address is taken")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", 30*time.Minute, "Idle session lifetime before eviction")
	cmd.Flags().StringVar(&exportBucket, "export-bucket", "", "Optional S3 bucket for exported artifacts")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

func runServe(addr string, portRetries int, sessionTTL time.Duration, exportBucket string, debug bool) error {
	// stdout carries the MCP transport; everything else goes to stderr.
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in --addr %q: %w", addr, err)
	}

	storeConfig := store.DefaultConfig()
	storeConfig.SessionTTL = sessionTTL
	st := store.New(storeConfig, logger)
	defer st.Shutdown()

	canvasConfig := canvas.DefaultConfig()
	canvasConfig.Host = host
	canvasConfig.Port = port
	canvasConfig.PortRetries = portRetries
	cv := canvas.NewServer(st, canvasConfig, logger, nil)

	if err := cv.Start(); err != nil {
		return err
	}
	logger.Info("canvas available", "url", "http://"+cv.Addr())

	var exports *exportstore.Store
	if exportBucket != "" {
		exports, err = exportstore.New(context.Background(), exportBucket, "exports/", logger)
		if err != nil {
			return err
		}
	}

	mcpServer := server.NewMCPServer("excalidraw-mcp", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	tools.NewService(st, cv, exports, logger).Register(mcpServer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(mcpServer)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("mcp server stopped", "error", err)
		} else {
			logger.Info("mcp client disconnected")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return cv.Shutdown(shutdownCtx)
}
