package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-service/internal/gate"
	"github.com/spec-kit/portal-service/internal/notify"
	"github.com/spec-kit/portal-service/internal/repository"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// NotificationsHandler serves the in-app feed and the operational
// failed-delivery view.
type NotificationsHandler struct {
	feed    *notify.InAppStore
	records repository.NotificationRepository
}

// NewNotificationsHandler constructs the handler.
func NewNotificationsHandler(feed *notify.InAppStore, records repository.NotificationRepository) *NotificationsHandler {
	return &NotificationsHandler{feed: feed, records: records}
}

// Feed returns the caller's in-app notifications, newest first.
func (h *NotificationsHandler) Feed(c *fiber.Ctx) error {
	principal, ok := gate.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAccessDenied()
	}

	entries, err := h.feed.Feed(c.UserContext(), principal.Account.ID, c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"notifications": entries})
}

// Failed lists permanently failed deliveries for the admin audit view.
// Never surfaced to end users.
func (h *NotificationsHandler) Failed(c *fiber.Ctx) error {
	records, err := h.records.ListFailed(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"failed": records})
}
