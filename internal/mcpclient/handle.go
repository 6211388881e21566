package mcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/observability"
)

// ServerState is the MCP server subprocess's lifecycle state.
type ServerState string

const (
	StateStarting ServerState = "starting"
	StateReady    ServerState = "ready"
	StateDegraded ServerState = "degraded"
	StateClosed   ServerState = "closed"
)

const maxRestartAttempts = 5

// MCPServerHandle owns one MCP server subprocess and its current tool
// listing. A failed tool call triggers one restart after a delay of about
// one second; the delay does not grow across restarts. A launch or restart
// that fails settles the handle into StateDegraded, after which its tools
// are reported unavailable and no further restart is attempted.
type MCPServerHandle struct {
	name    string
	cfg     config.MCPServerConfig
	metrics *observability.Metrics
	onEvent ProgressHandler

	mu             sync.RWMutex
	state          ServerState
	client         *client.Client
	tools          []ToolDescriptor
	restartAttempt int
}

func newHandle(name string, cfg config.MCPServerConfig, metrics *observability.Metrics, onEvent ProgressHandler) *MCPServerHandle {
	return &MCPServerHandle{
		name:    name,
		cfg:     cfg,
		metrics: metrics,
		onEvent: onEvent,
		state:   StateStarting,
	}
}

// State returns the handle's current lifecycle state.
func (h *MCPServerHandle) State() ServerState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Tools returns the qualified tool descriptors ("<server>.<tool>") this
// handle currently advertises. Empty when not Ready.
func (h *MCPServerHandle) Tools() []ToolDescriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tools
}

// Start launches the subprocess, performs the MCP handshake, and lists
// tools, transitioning to StateReady on success or StateDegraded on the
// first failure. It makes a single attempt and does not retry.
func (h *MCPServerHandle) Start(ctx context.Context) error {
	mcpClient, err := client.NewStdioMCPClient(h.cfg.Command, envSlice(h.cfg.Env), h.cfg.Args...)
	if err != nil {
		return h.markDegraded(apperr.New(apperr.KindMCPServerCrashed, fmt.Sprintf("creating MCP client for %q", h.name), err))
	}

	if err := mcpClient.Start(ctx); err != nil {
		return h.markDegraded(apperr.New(apperr.KindMCPServerCrashed, fmt.Sprintf("starting MCP server %q", h.name), err))
	}

	if h.onEvent != nil {
		mcpClient.OnNotification(h.handleNotification)
	}

	if _, err := mcpClient.Initialize(ctx, newMCPClientInitRequest()); err != nil {
		_ = mcpClient.Close()
		return h.markDegraded(apperr.New(apperr.KindMCPServerCrashed, fmt.Sprintf("initializing MCP server %q", h.name), err))
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = mcpClient.Close()
		return h.markDegraded(apperr.New(apperr.KindMCPMalformed, fmt.Sprintf("listing tools for MCP server %q", h.name), err))
	}

	tools := make([]ToolDescriptor, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools = append(tools, ToolDescriptor{
			Name:        h.name + "." + t.Name,
			Description: t.Description,
			InputSchema: convertSchema(t.InputSchema),
		})
	}

	h.mu.Lock()
	h.client = mcpClient
	h.tools = tools
	h.state = StateReady
	h.restartAttempt = 0
	h.mu.Unlock()

	slog.Info("mcp server connected", "server", h.name, "tools", len(tools))
	return nil
}

// CallTool invokes toolName with args. If the call fails, it restarts the
// server once (see restartWithBackoff) and still returns the call's error.
func (h *MCPServerHandle) CallTool(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
	h.mu.RLock()
	state := h.state
	mcpClient := h.client
	h.mu.RUnlock()

	if state == StateDegraded {
		return nil, apperr.New(apperr.KindMCPServerCrashed,
			fmt.Sprintf("MCP server %q is degraded", h.name), nil)
	}
	if mcpClient == nil {
		return nil, apperr.New(apperr.KindMCPServerCrashed, fmt.Sprintf("MCP server %q is not connected", h.name), nil)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		if restartErr := h.restartWithBackoff(ctx); restartErr != nil {
			return nil, restartErr
		}
		return nil, apperr.New(apperr.KindMCPServerCrashed, fmt.Sprintf("calling tool %q on %q", toolName, h.name), err)
	}

	return parseToolResult(resp)
}

// restartWithBackoff waits the first interval of a fresh exponential
// backoff (about one second) and calls Start once. It refuses once
// restartAttempt exceeds maxRestartAttempts; every successful Start resets
// restartAttempt to 0, and a failed Start leaves the handle StateDegraded.
func (h *MCPServerHandle) restartWithBackoff(ctx context.Context) error {
	h.mu.Lock()
	h.restartAttempt++
	attempt := h.restartAttempt
	h.mu.Unlock()

	if attempt > maxRestartAttempts {
		return h.markDegraded(apperr.New(apperr.KindMCPServerCrashed,
			fmt.Sprintf("MCP server %q exceeded %d restart attempts", h.name, maxRestartAttempts), nil))
	}

	if h.metrics != nil {
		h.metrics.MCPServerRestartsTotal.WithLabelValues(h.name).Inc()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	delay := backoff.WithMaxRetries(b, 1).NextBackOff()
	time.Sleep(delay)

	slog.Warn("mcp server restarting", "server", h.name, "attempt", attempt)
	return h.Start(ctx)
}

func (h *MCPServerHandle) markDegraded(err error) error {
	h.mu.Lock()
	h.state = StateDegraded
	h.mu.Unlock()
	slog.Error("mcp server degraded", "server", h.name, "error", err)
	return err
}

// Close stops the subprocess and marks the handle closed.
func (h *MCPServerHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = StateClosed
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

// handleNotification is registered as the mcp-go client's notification
// callback; it extracts progress notifications ($/progress, or the
// notifications/progress name newer servers use) and forwards them to the
// handle's ProgressHandler, ignoring any other notification method.
func (h *MCPServerHandle) handleNotification(notification mcp.JSONRPCNotification) {
	if notification.Method != "$/progress" && notification.Method != "notifications/progress" {
		return
	}

	params, ok := notification.Params.AdditionalFields["progress"].(float64)
	if !ok {
		return
	}
	total, _ := notification.Params.AdditionalFields["total"].(float64)
	message, _ := notification.Params.AdditionalFields["message"].(string)
	token, _ := notification.Params.AdditionalFields["progressToken"].(string)

	h.onEvent(ProgressEvent{
		ServerName: h.name,
		Token:      token,
		Progress:   params,
		Total:      total,
		Message:    message,
	})
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
