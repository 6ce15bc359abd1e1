package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/events"
	"github.com/spec-kit/portal-service/internal/repository"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// TaskService coordinates worker tasks; completion notifies the admins.
type TaskService struct {
	tasks    repository.TaskRepository
	accounts repository.AccountRepository
	bus      events.Dispatcher
	logger   *zap.Logger
}

// NewTaskService builds the service.
func NewTaskService(tasks repository.TaskRepository, accounts repository.AccountRepository, bus events.Dispatcher, logger *zap.Logger) *TaskService {
	return &TaskService{tasks: tasks, accounts: accounts, bus: bus, logger: logger}
}

// Create registers an open task.
func (s *TaskService) Create(ctx context.Context, title string, assigneeID, relatedQuoteID *string) (*domain.Task, error) {
	task := &domain.Task{
		Title:          title,
		AssigneeID:     assigneeID,
		RelatedQuoteID: relatedQuoteID,
		Status:         domain.TaskStatusOpen,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Complete marks the task done and emits TaskCompleted to admin recipients.
func (s *TaskService) Complete(ctx context.Context, taskID, workerID string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("task", nil)
		}
		return nil, err
	}
	if task.Status == domain.TaskStatusDone {
		return nil, apperrors.NewConflict("task already completed", nil)
	}
	if task.AssigneeID != nil && *task.AssigneeID != workerID {
		return nil, apperrors.NewAccessDenied()
	}

	if err := s.tasks.MarkDone(ctx, taskID, workerID); err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatusDone
	now := time.Now()
	task.CompletedAt = &now
	task.CompletedByID = &workerID

	admins, err := s.accounts.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		s.logger.Warn("admin recipient lookup failed", zap.Error(err))
	}
	recipients := make([]string, 0, len(admins))
	for _, admin := range admins {
		recipients = append(recipients, admin.ID)
	}

	event := events.Event{
		ID:           uuid.NewString(),
		Type:         events.EventTaskCompleted,
		SubjectID:    task.ID,
		ActorID:      workerID,
		RecipientIDs: recipients,
		Timestamp:    now,
		Payload: events.TaskCompletedPayload{
			TaskID:    task.ID,
			TaskTitle: task.Title,
		},
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("task completed emission failed",
			zap.String("task_id", task.ID), zap.Error(err))
	}

	return task, nil
}
