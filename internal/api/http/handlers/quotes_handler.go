package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-service/internal/api/dto"
	"github.com/spec-kit/portal-service/internal/gate"
	"github.com/spec-kit/portal-service/internal/service"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// QuotesHandler serves quote creation and approval.
type QuotesHandler struct {
	quotes *service.QuoteService
}

// NewQuotesHandler constructs the handler.
func NewQuotesHandler(quotes *service.QuoteService) *QuotesHandler {
	return &QuotesHandler{quotes: quotes}
}

// Create registers a draft quote.
func (h *QuotesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateQuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.Reference == "" || req.ContactEmail == "" {
		return apperrors.NewValidationError("reference and contact_email are required", nil)
	}

	quote, err := h.quotes.Create(c.UserContext(), req.Reference, req.ContactEmail, req.ContactName)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewQuoteResponse(quote))
}

// Approve marks a quote approved and provisions its client.
func (h *QuotesHandler) Approve(c *fiber.Ctx) error {
	principal, ok := gate.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAccessDenied()
	}

	quote, err := h.quotes.Approve(c.UserContext(), c.Params("id"), principal.Account.ID)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQuoteResponse(quote))
}

// Get returns a quote.
func (h *QuotesHandler) Get(c *fiber.Ctx) error {
	quote, err := h.quotes.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQuoteResponse(quote))
}
