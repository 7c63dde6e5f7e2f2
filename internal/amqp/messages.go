package amqp

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// MutationEvent records one successful state change made through the
// client, e.g. a loan approval. Consumers store it in the audit log; the
// ID makes redelivery idempotent.
type MutationEvent struct {
	ID         string    `json:"id"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewMutationEvent creates an event with a fresh ID and the current time
func NewMutationEvent(resource, resourceID, action string) *MutationEvent {
	return &MutationEvent{
		ID:         uuid.NewString(),
		Resource:   resource,
		ResourceID: resourceID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *MutationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MutationEventFromJSON creates an event from JSON bytes
func MutationEventFromJSON(data []byte) (*MutationEvent, error) {
	var msg MutationEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks the fields consumers rely on.
func (m *MutationEvent) Validate() error {
	switch {
	case m.ID == "":
		return errors.New("event id is required")
	case m.Resource == "":
		return errors.New("event resource is required")
	case m.Action == "":
		return errors.New("event action is required")
	}
	return nil
}
