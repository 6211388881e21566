// Package engine implements the Workflow Engine: compiles
// the agent graph, runs nodes to completion via the Supervisor's routing
// decisions, persists checkpoints, and streams progress events.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Kind enumerates the progress event kinds a session can be notified of.
type Kind string

const (
	EventAgentStart       Kind = "agent_start"
	EventAgentComplete    Kind = "agent_complete"
	EventRoutingDecision  Kind = "routing_decision"
	EventValidatorRun     Kind = "validator_run"
	EventHITLRequest      Kind = "hitl_request"
	EventWorkflowComplete Kind = "workflow_complete"
	EventError            Kind = "error"
)

// ProgressEvent is one item streamed to a session's subscribers, mirroring
// the outbound "agent_event"/"status" client channel message shapes.
type ProgressEvent struct {
	SessionID string         `json:"session_id"`
	Kind      Kind           `json:"kind"`
	Agent     string         `json:"agent,omitempty"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventBus publishes per-session progress events over a watermill gochannel
// pub/sub, the same in-process pub/sub primitive internal/event/bus.go uses
// for forwarding to a client channel.
type EventBus struct {
	pubsub *gochannel.GoChannel
}

// NewEventBus constructs an in-process event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NopLogger{},
		),
	}
}

func topicFor(sessionID string) string { return "workflow." + sessionID }

// Publish sends ev to any subscriber of its session's topic. Publishing to a
// topic with no subscribers is a no-op, not an error.
func (b *EventBus) Publish(ev ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding progress event: %w", err)
	}
	if err := b.pubsub.Publish(topicFor(ev.SessionID), message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("publishing progress event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of ProgressEvent for sessionID, closed when
// ctx is cancelled or the bus is closed. A ClientChannel implementation
// reads from this channel and forwards events to the external transport.
func (b *EventBus) Subscribe(ctx context.Context, sessionID string) (<-chan ProgressEvent, error) {
	msgs, err := b.pubsub.Subscribe(ctx, topicFor(sessionID))
	if err != nil {
		return nil, fmt.Errorf("subscribing to session %q events: %w", sessionID, err)
	}

	out := make(chan ProgressEvent)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev ProgressEvent
			if err := json.Unmarshal(msg.Payload, &ev); err == nil {
				select {
				case out <- ev:
				case <-ctx.Done():
					msg.Ack()
					return
				}
			}
			msg.Ack()
		}
	}()
	return out, nil
}

// Close shuts down the underlying pub/sub, terminating every subscriber
// channel.
func (b *EventBus) Close() error {
	return b.pubsub.Close()
}
