package clientchannel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ki-autoagent/engine/internal/engine"
	"github.com/ki-autoagent/engine/internal/state"
)

func newSessionID() string { return uuid.New().String() }

// ClientChannel abstracts the transport a Session speaks over. ws.go
// provides a gorilla/websocket implementation; tests use an in-memory one.
type ClientChannel interface {
	Send(Outbound) error
	Receive() (Inbound, error)
	Close() error
}

// Session enforces message ordering (init before anything else; a chat
// before initialized is rejected) and drives one engine.Engine run/resume
// cycle per connection.
type Session struct {
	channel ClientChannel
	eng     *engine.Engine
	events  *engine.EventBus

	mu            sync.Mutex
	sessionID     string
	workspacePath string
	initialized   bool
}

// NewSession wraps channel with protocol enforcement for one connection.
func NewSession(channel ClientChannel, eng *engine.Engine, events *engine.EventBus) *Session {
	return &Session{channel: channel, eng: eng, events: events}
}

// Serve reads inbound messages until Receive errors or ctx is cancelled,
// dispatching each to the engine and forwarding progress events back over
// the channel.
func (s *Session) Serve(ctx context.Context) error {
	defer s.channel.Close()

	for {
		msg, err := s.channel.Receive()
		if err != nil {
			return err
		}

		if err := s.dispatch(ctx, msg); err != nil {
			_ = s.channel.Send(Outbound{Type: OutboundError, Message: err.Error()})
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Session) dispatch(ctx context.Context, msg Inbound) error {
	s.mu.Lock()
	initialized := s.initialized
	sessionID := s.sessionID
	s.mu.Unlock()

	switch msg.Type {
	case InboundInit:
		return s.handleInit(msg)
	case InboundChat:
		if !initialized {
			return fmt.Errorf("chat received before init")
		}
		return s.handleChat(ctx, sessionID, msg.Content)
	case InboundHITLResponse:
		if !initialized {
			return fmt.Errorf("hitl_response received before init")
		}
		return s.handleHITLResponse(ctx, sessionID, msg.Content)
	case InboundCancel:
		if initialized {
			s.eng.Cancel(sessionID)
		}
		return nil
	default:
		return fmt.Errorf("unknown inbound message type %q", msg.Type)
	}
}

func (s *Session) handleInit(msg Inbound) error {
	sessionID := newSessionID()

	s.mu.Lock()
	s.sessionID = sessionID
	s.workspacePath = msg.WorkspacePath
	s.initialized = true
	s.mu.Unlock()

	if err := s.channel.Send(Outbound{Type: OutboundConnected, SessionID: sessionID}); err != nil {
		return err
	}
	return s.channel.Send(Outbound{Type: OutboundInitialized})
}

func (s *Session) handleChat(ctx context.Context, sessionID, content string) error {
	s.mu.Lock()
	workspacePath := s.workspacePath
	s.mu.Unlock()

	go s.forwardEvents(ctx, sessionID)

	result, err := s.eng.Run(ctx, sessionID, content, workspacePath, s.hitlCallback)
	return s.reportResult(result, err)
}

func (s *Session) handleHITLResponse(ctx context.Context, sessionID, content string) error {
	result, err := s.eng.Resume(ctx, sessionID, content, s.hitlCallback)
	return s.reportResult(result, err)
}

// hitlCallback always defers: the synchronous-answer path only matters for
// in-process callers (e.g. tests); a network
// client answers asynchronously via a later hitl_response message.
func (s *Session) hitlCallback(req *state.HITLRequest) (string, engine.HITLDecision) {
	_ = s.channel.Send(Outbound{
		Type:    OutboundHITLRequest,
		Prompt:  req.Prompt,
		Options: req.Options,
	})
	return "", engine.HITLDeferred
}

func (s *Session) reportResult(result *engine.Result, err error) error {
	if err != nil {
		return s.channel.Send(Outbound{Type: OutboundError, Message: err.Error()})
	}
	if result.Suspended {
		return s.channel.Send(Outbound{Type: OutboundStatus, Status: StatusSuspended})
	}
	return s.channel.Send(Outbound{
		Type:    OutboundWorkflowComplete,
		Success: len(result.State.Errors) == 0,
		Result:  result.State.AgentOutputs["responder"],
	})
}

// forwardEvents relays the engine's progress events to the channel for the
// lifetime of ctx, exiting silently once the subscription channel closes.
func (s *Session) forwardEvents(ctx context.Context, sessionID string) {
	if s.events == nil {
		return
	}
	events, err := s.events.Subscribe(ctx, sessionID)
	if err != nil {
		return
	}
	for ev := range events {
		_ = s.channel.Send(Outbound{
			Type:    OutboundAgentEvent,
			Agent:   ev.Agent,
			Event:   string(ev.Kind),
			Payload: ev.Payload,
		})
	}
}
