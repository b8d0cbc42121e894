package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Domain event types
const (
	ProjectCreated = "project:created"
	ProjectUpdated = "project:updated"
	ProjectDeleted = "project:deleted"

	// ProjectSetupFailed is emitted when provisioning exhausts its retries.
	ProjectSetupFailed = "project:setupFailed"
)

// Event describes a committed change to the domain.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates an Event with a JSON-encoded payload.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ProjectDeletedPayload is the payload of a project:deleted event.
type ProjectDeletedPayload struct {
	ProjectID uuid.UUID `json:"project_id"`
}

// ProjectSetupFailedPayload is the payload of a project:setupFailed event.
type ProjectSetupFailedPayload struct {
	JobID     uuid.UUID `json:"job_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
}

// EventHandler receives emitted events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter publishes events to handlers.
type EventEmitter interface {
	// EmitEvent delivers event to every registered handler. The returned
	// error is informational; emitters never stop on a failing handler.
	EmitEvent(ctx context.Context, event *Event) error
}
