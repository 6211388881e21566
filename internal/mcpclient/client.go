// Package mcpclient implements the MCP Client: launches and
// supervises MCP tool server subprocesses over stdio JSON-RPC, using
// mark3labs/mcp-go, with restart-with-backoff and $/progress forwarding.
package mcpclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/observability"
)

const protocolVersion = "2024-11-05"

// ToolDescriptor mirrors an MCP server's advertised tool shape, reused by
// internal/llm.ToolDefinition construction.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Client manages the set of MCPServerHandle instances configured in
// config.Config.MCPServers, keyed by server name.
type Client struct {
	mu       sync.RWMutex
	handles  map[string]*MCPServerHandle
	metrics  *observability.Metrics
	onEvent  ProgressHandler
}

// New constructs a Client from the MCP server registry. Connections are
// established by ConnectAll, not at construction time.
func New(cfg *config.Config, metrics *observability.Metrics, onEvent ProgressHandler) *Client {
	c := &Client{
		handles: make(map[string]*MCPServerHandle),
		metrics: metrics,
		onEvent: onEvent,
	}
	for name, serverCfg := range cfg.MCPServers {
		c.handles[name] = newHandle(name, serverCfg, metrics, onEvent)
	}
	return c
}

// ConnectAll starts every configured server and blocks until each has
// either reached Ready or failed to start. A single server failing to
// start does not prevent the others from connecting.
func (c *Client) ConnectAll(ctx context.Context) error {
	c.mu.RLock()
	handles := make([]*MCPServerHandle, 0, len(c.handles))
	for _, h := range c.handles {
		handles = append(handles, h)
	}
	c.mu.RUnlock()

	var firstErr error
	for _, h := range handles {
		if err := h.Start(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Handle returns the named server's handle.
func (c *Client) Handle(name string) (*MCPServerHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.handles[name]
	if !ok {
		return nil, apperr.New(apperr.KindMCPUnknownTool, fmt.Sprintf("no MCP server configured named %q", name), nil)
	}
	return h, nil
}

// ListTools aggregates the tool descriptors advertised by every connected
// server, prefixed with "<server>." to disambiguate identically-named
// tools across servers.
func (c *Client) ListTools() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ToolDescriptor
	for _, h := range c.handles {
		out = append(out, h.Tools()...)
	}
	return out
}

// CallTool dispatches to the owning server by the "<server>.<tool>" name.
func (c *Client) CallTool(ctx context.Context, qualifiedName string, args map[string]any) (map[string]any, error) {
	serverName, toolName, err := splitQualifiedName(qualifiedName)
	if err != nil {
		return nil, err
	}
	h, err := c.Handle(serverName)
	if err != nil {
		return nil, err
	}
	return h.CallTool(ctx, toolName, args)
}

// Call is one tool invocation to dispatch via CallMany.
type Call struct {
	QualifiedName string
	Args          map[string]any
}

// CallResult is the outcome of one Call dispatched via CallMany. CallMany
// returns results at the same positions as their calls, so callers match
// results to calls by index without relying on completion order.
type CallResult struct {
	Result map[string]any
	Err    error
}

// CallMany dispatches every call in parallel, one goroutine per call, and
// returns results in the same order as calls. A failing call does not
// cancel the others; each call's outcome is reported independently.
func (c *Client) CallMany(ctx context.Context, calls []Call) []CallResult {
	results := make([]CallResult, len(calls))

	g, ctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			result, err := c.CallTool(ctx, call.QualifiedName, call.Args)
			results[i] = CallResult{Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// CloseAll stops every managed server subprocess.
func (c *Client) CloseAll() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var firstErr error
	for _, h := range c.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func splitQualifiedName(qualified string) (server, tool string, err error) {
	for i := 0; i < len(qualified); i++ {
		if qualified[i] == '.' {
			return qualified[:i], qualified[i+1:], nil
		}
	}
	return "", "", apperr.New(apperr.KindMCPUnknownTool,
		fmt.Sprintf("tool name %q is not qualified as server.tool", qualified), nil)
}

// newMCPClientInitRequest builds the handshake request every handle sends
// after starting its subprocess.
func newMCPClientInitRequest() mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ClientInfo = mcp.Implementation{Name: "autoagent-engine", Version: "1.0.0"}
	req.Params.ProtocolVersion = protocolVersion
	return req
}
