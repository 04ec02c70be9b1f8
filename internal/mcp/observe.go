package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/metrics"
)

// observeInbound counts and times every request a client sends, and logs
// request and response payloads at debug level.
func observeInbound(logger *slog.Logger) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			start := time.Now()
			tool := toolName(req)
			debug := logger != nil && logger.Enabled(ctx, slog.LevelDebug)
			if debug {
				logger.Debug("mcp request", "method", method, "tool", tool, "session_id", sessionID(req), "params", formatPayload(params(req)))
			}

			result, err := next(ctx, method, req)

			if strings.HasPrefix(method, "notifications/") {
				return result, err
			}
			metrics.MCPCallsTotal.WithLabelValues(method, tool, callOutcome(result, err)).Inc()
			metrics.MCPCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			if debug {
				logger.Debug("mcp response", "method", method, "tool", tool, "result", formatPayload(result), "error", err)
			}
			return result, err
		}
	}
}

// logOutbound logs server-initiated messages at debug level.
func logOutbound(logger *slog.Logger) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}
			logger.Debug("mcp outbound", "method", method, "session_id", sessionID(req), "params", formatPayload(params(req)))
			return next(ctx, method, req)
		}
	}
}

// callOutcome distinguishes protocol failures from tool results flagged as
// errors.
func callOutcome(result sdkmcp.Result, err error) string {
	if err != nil {
		return "error"
	}
	if r, ok := result.(*sdkmcp.CallToolResult); ok && r.IsError {
		return "tool_error"
	}
	return "ok"
}

func toolName(req sdkmcp.Request) string {
	if r, ok := req.(*sdkmcp.CallToolRequest); ok && r.Params != nil {
		return r.Params.Name
	}
	return ""
}

// sessionID and params tolerate requests whose session or params are unset.
func sessionID(req sdkmcp.Request) (id string) {
	if req == nil {
		return ""
	}
	defer func() {
		if recover() != nil {
			id = ""
		}
	}()
	if s := req.GetSession(); s != nil {
		return s.ID()
	}
	return ""
}

func params(req sdkmcp.Request) (p any) {
	if req == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			p = nil
		}
	}()
	return req.GetParams()
}

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	return string(data)
}
