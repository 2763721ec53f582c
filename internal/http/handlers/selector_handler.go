package handlers

import (
	"github.com/gofiber/fiber/v2"

	"qmd/internal/cartstore"
	"qmd/internal/log"
	"qmd/internal/services"
	"qmd/internal/validate"
)

type SelectorHandler struct {
	Selector *services.SelectorService
	Flash    *services.FlashQueue
}

// GET /carro/selector lists the citizen's carts, fresh from the API every time.
func (h *SelectorHandler) View(c *fiber.Ctx) error {
	v, err := h.Selector.List(c.UserContext(), sessionOf(c))
	msg := ""
	if err != nil {
		log.Error(c, "selector.list.fail", err, nil)
		msg = services.UserMessage(err)
		c.Status(fiber.StatusBadGateway)
	}
	return render(c, "selector", fiber.Map{"Selector": v, "Err": msg})
}

// POST /carro/selector binds the chosen cart.
func (h *SelectorHandler) Select(c *fiber.Ctx) error {
	sc := sessionOf(c)
	id, ok := validate.ID(c.FormValue("carroId"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "carroId"})
		return c.Status(fiber.StatusBadRequest).SendString("carro inválido")
	}
	if err := h.Selector.Select(c.UserContext(), sc, id); err != nil {
		log.Warn(c, "selector.select.fail", err, map[string]any{"cart_id": id})
		h.Flash.Push(sc.SessionID, cartstore.KindError, services.UserMessage(err))
		return c.Redirect("/carro/selector")
	}
	return c.Redirect("/carro")
}

// POST /carro/selector/nuevo
func (h *SelectorHandler) Create(c *fiber.Ctx) error {
	sc := sessionOf(c)
	id, err := h.Selector.Create(c.UserContext(), sc)
	if err != nil {
		log.Warn(c, "selector.create.fail", err, nil)
		h.Flash.Push(sc.SessionID, cartstore.KindError, services.UserMessage(err))
		return c.Redirect("/carro/selector")
	}
	log.Info(c, "selector.create", map[string]any{"cart_id": id})
	return c.Redirect("/carro")
}

// POST /carro/selector/quitar
func (h *SelectorHandler) Deselect(c *fiber.Ctx) error {
	sc := sessionOf(c)
	if err := h.Selector.Deselect(c.UserContext(), sc); err != nil {
		log.Error(c, "selector.deselect.fail", err, nil)
	}
	return c.Redirect("/carro/selector")
}
