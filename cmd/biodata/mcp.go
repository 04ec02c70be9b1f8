package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/config"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the data store to an MCP client over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runMCPStdio(cfg)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// runMCPStdio serves MCP on stdin/stdout until stdin closes or a signal
// arrives. Logs go to stderr to keep stdout clean for JSON-RPC.
func runMCPStdio(cfg config.Config) error {
	logger, closeLog := newLogger(cfg, os.Stderr)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer rt.Close()

	logger.Info("starting stdio transport")
	if err := rt.mcpServer().Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("stdio server error", "error", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}
