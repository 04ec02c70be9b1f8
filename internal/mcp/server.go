package mcp

import (
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/store"
)

// Config contains server configuration.
type Config struct {
	Store    *store.Store
	Geocoder store.Geocoder
	Version  string
	Logger   *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "biodata",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(observeInbound(cfg.Logger))
	server.AddSendingMiddleware(logOutbound(cfg.Logger))

	registerTools(server, cfg.Store, cfg.Geocoder)

	return server
}
