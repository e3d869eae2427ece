// Package audit captures security-relevant actions in the authorization
// flow. Events are emitted from domain logic and fanned out to sinks; the
// broker's rule is that security violations are always audited distinctly
// from ordinary protocol errors.
package audit

import (
	"context"
	"sync"
	"time"
)

// EventCategory classifies audit events by their primary purpose, enabling
// different retention and routing per category.
type EventCategory string

const (
	// CategorySecurity covers events that feed security monitoring:
	// signature failures, session-binding mismatches, CSRF rejections.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine flow milestones useful for
	// debugging: flows started, consent granted, tokens exchanged.
	CategoryOperations EventCategory = "operations"
)

// Event is a single audit record. Keep it transport-agnostic so sinks can
// serialize it however they need.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    string        `json:"action"`
	ClientID  string        `json:"client_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Device    string        `json:"device,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// Publisher delivers events to a sink. Publish must not block the request
// path on sink latency beyond the context deadline.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MemoryPublisher collects events in memory for tests and for deployments
// without a broker configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Stamp fills the timestamp if the emitter did not.
func Stamp(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}
