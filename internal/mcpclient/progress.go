package mcpclient

// ProgressEvent is a single $/progress notification relayed from an MCP
// server while a long-running tool call is in flight.
type ProgressEvent struct {
	ServerName string
	Token      string
	Progress   float64
	Total      float64
	Message    string
}

// ProgressHandler receives progress events as they arrive. Implementations
// must not block; the engine forwards these onto the watermill event bus
// (internal/engine/events.go) for delivery to ClientChannel subscribers.
type ProgressHandler func(ProgressEvent)
