package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a dispatch audit event.
type EventType string

const (
	// Dispatch lifecycle events
	EventDispatchSent    EventType = "dispatch.sent"
	EventDispatchFailed  EventType = "dispatch.failed"
	EventDispatchRetried EventType = "dispatch.retried"

	// Account state events
	EventAccountRateLimited EventType = "account.ratelimited"

	// Batch lifecycle events
	EventBatchStarted   EventType = "batch.started"
	EventBatchCompleted EventType = "batch.completed"
)

// Event is one entry in the dispatch audit trail.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	AccountID  string            `json:"accountId,omitempty"`
	MessageID  string            `json:"messageId,omitempty"`
	BatchID    string            `json:"batchId,omitempty"`
	Recipients []string          `json:"recipients,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(t EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// WithAccount sets the account id.
func (e *Event) WithAccount(id string) *Event {
	e.AccountID = id
	return e
}

// WithMessage sets the provider message id.
func (e *Event) WithMessage(id string) *Event {
	e.MessageID = id
	return e
}

// WithBatch sets the batch id.
func (e *Event) WithBatch(id string) *Event {
	e.BatchID = id
	return e
}

// WithRecipients sets the recipient list.
func (e *Event) WithRecipients(recipients []string) *Event {
	e.Recipients = recipients
	return e
}

// WithDetail adds one detail key.
func (e *Event) WithDetail(key, value string) *Event {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}
