// Package clientchannel defines the bidirectional message protocol between
// the engine and a connected client, plus a reference transport (ws.go)
// implementing it over gorilla/websocket.
package clientchannel

// Inbound message types, sent by the client.
const (
	InboundInit         = "init"
	InboundChat         = "chat"
	InboundHITLResponse = "hitl_response"
	InboundCancel       = "cancel"
)

// Outbound message types, sent by the engine.
const (
	OutboundConnected        = "connected"
	OutboundInitialized      = "initialized"
	OutboundStatus           = "status"
	OutboundAgentEvent       = "agent_event"
	OutboundMCPProgress      = "mcp_progress"
	OutboundHITLRequest      = "hitl_request"
	OutboundWorkflowComplete = "workflow_complete"
	OutboundError            = "error"
)

// Inbound is one message received from a client. Only the fields relevant
// to Type are populated; the rest are left zero.
type Inbound struct {
	Type          string `json:"type"`
	WorkspacePath string `json:"workspace_path,omitempty"`
	Content       string `json:"content,omitempty"`
}

// Outbound is one message sent to a client.
type Outbound struct {
	Type string `json:"type"`

	// connected
	SessionID string `json:"session_id,omitempty"`

	// status
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// agent_event
	Agent   string         `json:"agent,omitempty"`
	Event   string         `json:"event,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`

	// mcp_progress
	Server string `json:"server,omitempty"`

	// hitl_request
	Prompt  string   `json:"prompt,omitempty"`
	Options []string `json:"options,omitempty"`

	// workflow_complete
	Success bool `json:"success,omitempty"`
	Result  any  `json:"result,omitempty"`

	// error
	ErrorKind   string `json:"error_kind,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

// Status coarse-progress values for an OutboundStatus message.
const (
	StatusRunning   = "running"
	StatusSuspended = "suspended"
	StatusDone      = "done"
)
