package domain

import "time"

// TaskStatus tracks worker task progress.
type TaskStatus string

const (
	TaskStatusOpen TaskStatus = "OPEN"
	TaskStatusDone TaskStatus = "DONE"
)

// Task is a unit of work assigned to a worker; completion emits a domain event.
type Task struct {
	ID               string
	Title            string
	AssigneeID       *string
	RelatedQuoteID   *string
	Status           TaskStatus
	CompletedAt      *time.Time
	CompletedByID    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
