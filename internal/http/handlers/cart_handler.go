package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"qmd/internal/cartstore"
	"qmd/internal/log"
	"qmd/internal/services"
	"qmd/internal/validate"
)

type CartHandler struct {
	Cart  *services.CartService
	Flash *services.FlashQueue
}

// GET /carro renders whichever state the cart view is in. ?refresh=1 reloads
// the cart from the API.
func (h *CartHandler) View(c *fiber.Ctx) error {
	sc := sessionOf(c)
	v, err := h.Cart.View(c.UserContext(), sc, c.Query("refresh") == "1")
	if err != nil {
		return err
	}
	if v.State == services.ViewError {
		c.Status(fiber.StatusBadGateway)
	}
	return render(c, "cart", fiber.Map{"View": v, "State": v.State.String()})
}

// done redirects back to the cart, flashing errors that were not notified yet.
func (h *CartHandler) done(c *fiber.Ctx, action string, err error, fields map[string]any) error {
	if err != nil {
		log.Warn(c, action+".fail", err, fields)
		flashLocal(h.Flash, sessionOf(c).SessionID, err)
	} else {
		log.Info(c, action, fields)
	}
	return c.Redirect("/carro")
}

func (h *CartHandler) lineID(c *fiber.Ctx) (string, bool) {
	id, ok := validate.ID(c.Params("lineId"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "lineId"})
	}
	return id, ok
}

// POST /carro/lineas/:lineId/incrementar
func (h *CartHandler) Increment(c *fiber.Ctx) error {
	return h.step(c, +1)
}

// POST /carro/lineas/:lineId/decrementar
func (h *CartHandler) Decrement(c *fiber.Ctx) error {
	return h.step(c, -1)
}

func (h *CartHandler) step(c *fiber.Ctx, delta int) error {
	line, ok := h.lineID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("línea inválida")
	}
	err := h.Cart.Step(c.UserContext(), sessionOf(c), line, delta)
	return h.done(c, "cart.step", err, map[string]any{"line_id": line, "delta": delta})
}

// POST /carro/lineas/:lineId/cantidad with a typed quantity.
func (h *CartHandler) SetQuantity(c *fiber.Ctx) error {
	line, ok := h.lineID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("línea inválida")
	}
	q, ok := validate.Qty(c.FormValue("cantidad"))
	if !ok {
		// below one (or not a number) leaves the line as it is
		log.Info(c, "cart.qty.ignored", map[string]any{"line_id": line, "value": c.FormValue("cantidad")})
		h.Flash.Push(sessionOf(c).SessionID, cartstore.KindInfo, services.UserMessage(cartstore.ErrInvalidQuantity))
		return c.Redirect("/carro")
	}
	err := h.Cart.SetQuantity(c.UserContext(), sessionOf(c), line, q)
	return h.done(c, "cart.qty", err, map[string]any{"line_id": line, "qty": q})
}

// POST /carro/lineas/:lineId/eliminar
func (h *CartHandler) Remove(c *fiber.Ctx) error {
	line, ok := h.lineID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("línea inválida")
	}
	err := h.Cart.Remove(c.UserContext(), sessionOf(c), line)
	return h.done(c, "cart.remove", err, map[string]any{"line_id": line})
}

// POST /carro/tramitar
func (h *CartHandler) Submit(c *fiber.Ctx) error {
	sc := sessionOf(c)
	err := h.Cart.Submit(c.UserContext(), sc)
	if err == nil {
		log.Audit(c, "cart.submit", map[string]any{"cart_id": sc.CartID, "citizen_id": sc.CitizenID})
		return c.Redirect("/carro")
	}
	return h.done(c, "cart.submit", err, map[string]any{"cart_id": sc.CartID})
}

// POST /carro/nuevo binds the citizen's open cart, creating it if needed.
func (h *CartHandler) StartNew(c *fiber.Ctx) error {
	_, err := h.Cart.StartNew(c.UserContext(), sessionOf(c))
	return h.done(c, "cart.new", err, nil)
}

// GET /api/v1/carro returns the session's cart snapshot as JSON.
func (h *CartHandler) JSON(c *fiber.Ctx) error {
	snap, err := h.Cart.Snapshot(c.UserContext(), sessionOf(c))
	switch {
	case errors.Is(err, services.ErrNoCitizen):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": services.UserMessage(err)})
	case errors.Is(err, cartstore.ErrNoCart):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": services.UserMessage(err)})
	case errors.Is(err, cartstore.ErrCartSubmitted):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": services.UserMessage(err)})
	case err != nil:
		log.Error(c, "cart.json.fail", err, nil)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": services.UserMessage(err)})
	}
	return c.JSON(snapshotJSON(snap))
}

type lineJSON struct {
	ID       string `json:"id"`
	Producto string `json:"productoId"`
	Nombre   string `json:"nombre"`
	Precio   string `json:"precio"`
	Cantidad int    `json:"cantidad"`
	Subtotal string `json:"subtotal"`
	Estado   string `json:"estado"`
}

type cartJSON struct {
	ID         string     `json:"id"`
	Estado     string     `json:"estado"`
	Total      string     `json:"total"`
	Submitting bool       `json:"tramitando"`
	Lines      []lineJSON `json:"detalles"`
}

func snapshotJSON(s cartstore.Snapshot) cartJSON {
	out := cartJSON{
		ID:         s.CartID,
		Estado:     s.Status.String(),
		Total:      s.Total.StringFixed(2),
		Submitting: s.Submitting,
		Lines:      make([]lineJSON, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		out.Lines = append(out.Lines, lineJSON{
			ID:       l.ID.String(),
			Producto: l.Producto.ID.String(),
			Nombre:   l.Producto.Nombre,
			Precio:   l.Producto.Precio.StringFixed(2),
			Cantidad: l.Cantidad,
			Subtotal: l.Subtotal.StringFixed(2),
			Estado:   l.State.String(),
		})
	}
	return out
}
