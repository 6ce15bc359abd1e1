package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-service/internal/api/dto"
	"github.com/spec-kit/portal-service/internal/service"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// AccountsHandler serves admin account management.
type AccountsHandler struct {
	accounts *service.AccountService
}

// NewAccountsHandler constructs the handler.
func NewAccountsHandler(accounts *service.AccountService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts}
}

// Create adds a worker or admin account. Direct creation: no provisioning,
// no onboarding events.
func (h *AccountsHandler) Create(c *fiber.Ctx) error {
	var req dto.AdminCreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email and password are required", nil)
	}

	account, err := h.accounts.CreateByAdmin(c.UserContext(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewAccountResponse(account))
}

// Deactivate flags an account inactive.
func (h *AccountsHandler) Deactivate(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return apperrors.NewValidationError("account id required", nil)
	}
	if err := h.accounts.Deactivate(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
