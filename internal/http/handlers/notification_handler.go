package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"qmd/internal/log"
	"qmd/internal/services"
	"qmd/internal/session"
	"qmd/internal/validate"
)

type NotificationHandler struct {
	Notifs *services.NotificationService
	Flash  *services.FlashQueue
}

// GET /notificaciones
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	ns, err := h.Notifs.List(c.UserContext(), sessionOf(c))
	msg := ""
	if err != nil {
		log.Error(c, "notifications.list.fail", err, nil)
		msg = services.UserMessage(err)
		c.Status(fiber.StatusBadGateway)
	}
	return render(c, "notifications", fiber.Map{"Notifications": ns, "Unread": services.Unread(ns), "Err": msg})
}

// POST /notificaciones/:id/leida
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	return h.local(c, "notifications.read", h.Notifs.MarkRead)
}

// POST /notificaciones/:id/ocultar
func (h *NotificationHandler) Dismiss(c *fiber.Ctx) error {
	return h.local(c, "notifications.dismiss", h.Notifs.Dismiss)
}

// POST /notificaciones/leidas
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	if err := h.Notifs.MarkAllRead(c.UserContext(), sessionOf(c)); err != nil {
		log.Error(c, "notifications.readall.fail", err, nil)
	}
	return c.Redirect("/notificaciones")
}

func (h *NotificationHandler) local(c *fiber.Ctx, action string, fn func(context.Context, session.Context, string) error) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "notification"})
		return c.Status(fiber.StatusBadRequest).SendString("notificación inválida")
	}
	if err := fn(c.UserContext(), sessionOf(c), id); err != nil {
		log.Error(c, action+".fail", err, map[string]any{"id": id})
	}
	return c.Redirect("/notificaciones")
}
