// Package apperr implements the engine's error taxonomy: a closed
// set of error kinds carried by a single Error type, rather than a hierarchy
// of distinct Go error types. Callers branch on Kind and Retriable, and still
// get normal %w wrapping/unwrapping via errors.Is/errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies which part of the §7 taxonomy an error belongs to.
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindProtocol            Kind = "protocol"
	KindProviderRateLimit   Kind = "provider_rate_limit"
	KindProviderTimeout     Kind = "provider_timeout"
	KindProviderAuth        Kind = "provider_auth"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindMCPServerCrashed    Kind = "mcp_server_crashed"
	KindMCPMalformed        Kind = "mcp_malformed_response"
	KindMCPUnknownTool      Kind = "mcp_unknown_tool"
	KindValidatorMissing    Kind = "validator_missing"
	KindValidatorTimeout    Kind = "validator_timeout"
	KindValidatorCrashed    Kind = "validator_crashed"
	KindIterationBudget     Kind = "iteration_budget_exceeded"
	KindHITLRequired        Kind = "hitl_required"
	KindCancelled           Kind = "cancelled"
	KindInvariantViolation  Kind = "invariant_violation"
	KindUnknownAgent        Kind = "unknown_agent"
)

// retriableKinds lists the kinds that are ever retried automatically by
// the LLM registry or the MCP client.
var retriableKinds = map[Kind]bool{
	KindProviderRateLimit:   true,
	KindProviderTimeout:     true,
	KindProviderUnavailable: true,
	KindMCPServerCrashed:    true,
}

// Error is the engine's single structured error type.
type Error struct {
	Kind      Kind
	Message   string
	Retriable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error, deriving Retriable from the kind unless the kind is
// absent from the retriable set (defaults to false).
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retriable: retriableKinds[kind],
		Cause:     cause,
	}
}

// Is supports errors.Is(err, apperr.New(kind, "", nil)) comparisons by Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind from err, if any, ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetriable reports whether err (or a wrapped *Error within it) is
// retriable per the §4.1/§7 policy.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retriable
	}
	return false
}
