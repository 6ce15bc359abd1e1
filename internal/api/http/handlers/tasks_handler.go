package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-service/internal/api/dto"
	"github.com/spec-kit/portal-service/internal/gate"
	"github.com/spec-kit/portal-service/internal/service"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// TasksHandler serves task creation and completion.
type TasksHandler struct {
	tasks *service.TaskService
}

// NewTasksHandler constructs the handler.
func NewTasksHandler(tasks *service.TaskService) *TasksHandler {
	return &TasksHandler{tasks: tasks}
}

// Create registers an open task (admin portal).
func (h *TasksHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.Title == "" {
		return apperrors.NewValidationError("title is required", nil)
	}

	task, err := h.tasks.Create(c.UserContext(), req.Title, req.AssigneeID, req.RelatedQuoteID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewTaskResponse(task))
}

// Complete marks a task done (worker portal).
func (h *TasksHandler) Complete(c *fiber.Ctx) error {
	principal, ok := gate.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAccessDenied()
	}

	task, err := h.tasks.Complete(c.UserContext(), c.Params("id"), principal.Account.ID)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTaskResponse(task))
}
