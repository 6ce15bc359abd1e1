package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-service/internal/api/dto"
	"github.com/spec-kit/portal-service/internal/service"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// AuthHandler serves registration, login, and invite activation.
type AuthHandler struct {
	accounts *service.AccountService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Register creates a client account (self-service).
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email and password are required", nil)
	}

	account, token, exp, err := h.accounts.RegisterClient(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.AuthResponse{
		Account:   dto.NewAccountResponse(account),
		Token:     token,
		ExpiresAt: exp,
	})
}

// Login authenticates any role.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	account, token, exp, err := h.accounts.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.AuthResponse{
		Account:   dto.NewAccountResponse(account),
		Token:     token,
		ExpiresAt: exp,
	})
}

// AcceptInvite sets credentials for a provisioned account.
func (h *AuthHandler) AcceptInvite(c *fiber.Ctx) error {
	var req dto.AcceptInviteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.Token == "" || req.Password == "" {
		return apperrors.NewValidationError("token and password are required", nil)
	}

	account, err := h.accounts.AcceptInvite(c.UserContext(), req.Token, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewAccountResponse(account))
}
