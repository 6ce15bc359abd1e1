package dto

import (
	"time"

	"github.com/spec-kit/portal-service/internal/domain"
)

// CreateQuoteRequest payload.
type CreateQuoteRequest struct {
	Reference    string `json:"reference"`
	ContactEmail string `json:"contact_email"`
	ContactName  string `json:"contact_name"`
}

// QuoteResponse is the public quote projection.
type QuoteResponse struct {
	ID              string     `json:"id"`
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	ClientAccountID *string    `json:"client_account_id,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewQuoteResponse maps the domain model.
func NewQuoteResponse(quote *domain.Quote) QuoteResponse {
	return QuoteResponse{
		ID:              quote.ID,
		Reference:       quote.Reference,
		Status:          string(quote.Status),
		ClientAccountID: quote.ClientAccountID,
		ApprovedAt:      quote.ApprovedAt,
		CreatedAt:       quote.CreatedAt,
	}
}

// CreateTaskRequest payload.
type CreateTaskRequest struct {
	Title          string  `json:"title"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	RelatedQuoteID *string `json:"related_quote_id,omitempty"`
}

// TaskResponse is the public task projection.
type TaskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewTaskResponse maps the domain model.
func NewTaskResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Status:      string(task.Status),
		CompletedAt: task.CompletedAt,
		CreatedAt:   task.CreatedAt,
	}
}
