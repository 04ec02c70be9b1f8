package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API, MCP endpoint and offline controller",
	Long: `Serve the local HTTP API under /api, the MCP streamable endpoint at
/mcp, and Prometheus metrics at /metrics.

When a cache origin is configured, every other path is answered by the
offline controller: the application shell is precached on startup and
served cache-first, so the app keeps loading when the origin is down.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Transport == config.TransportStdio {
		return runMCPStdio(cfg)
	}

	logger, closeLog := newLogger(cfg, os.Stdout)
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer rt.Close()

	mcpServer := rt.mcpServer()
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           rt.httpHandler(mcpHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if rt.registration != nil {
		g.Go(func() error {
			return startOfflineController(gctx, rt, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(logger, httpServer)
	})

	return g.Wait()
}

// startOfflineController restores the stored shell, installs the configured
// one, then follows the manifest for new versions. A failed install is
// logged and the restored shell keeps serving. Without one, shell requests
// pass through to the origin.
func startOfflineController(ctx context.Context, rt *runtime, logger *slog.Logger) error {
	wc, err := rt.workerConfig()
	if err != nil {
		logger.Error("loading shell manifest", "error", err)
		return nil
	}
	restored, err := rt.restoreWorker(ctx, wc)
	if err != nil {
		logger.Warn("restoring stored shell", "error", err)
	}
	installed := wc.Version
	if err := rt.installWorker(ctx, wc); err != nil {
		logger.Error("installing shell", "version", wc.Version, "restored", restored, "error", err)
		installed = restored
	}
	if rt.cfg.Cache.Manifest == "" {
		return nil
	}
	if err := rt.watchManifest(ctx, installed); err != nil {
		logger.Error("watching shell manifest", "path", rt.cfg.Cache.Manifest, "error", err)
	}
	return nil
}

func shutdown(logger *slog.Logger, server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}
	return nil
}
