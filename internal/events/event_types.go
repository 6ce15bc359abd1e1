package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTaskCompleted    EventType = "task_completed"
	EventQuoteValidated   EventType = "quote_validated"
	EventAccountCreated   EventType = "account_created"
	EventInvitationIssued EventType = "invitation_issued"
)

// Event represents an immutable domain event emitted by services.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	SubjectID    string      `json:"subject_id"`
	ActorID      string      `json:"actor_id,omitempty"`
	RecipientIDs []string    `json:"recipient_ids"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// TaskCompletedPayload payload.
type TaskCompletedPayload struct {
	TaskID    string `json:"task_id"`
	TaskTitle string `json:"task_title"`
}

// QuoteValidatedPayload payload.
type QuoteValidatedPayload struct {
	QuoteID        string  `json:"quote_id"`
	QuoteReference string  `json:"quote_reference"`
	ClientID       *string `json:"client_id,omitempty"`
}

// AccountCreatedPayload payload.
type AccountCreatedPayload struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// InvitationIssuedPayload payload.
type InvitationIssuedPayload struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Token     string `json:"token"`
}
