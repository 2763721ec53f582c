package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"qmd/internal/log"
	"qmd/internal/services"
	"qmd/internal/validate"
)

type ProductHandler struct {
	Catalog *services.CatalogService
	Cart    *services.CartService
	Flash   *services.FlashQueue
}

// GET /productos/:id shows the product with its purchase history.
func (h *ProductHandler) Detail(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "product"})
		return notFound(c, fiber.StatusNotFound, "Producto no encontrado")
	}
	d, err := h.Catalog.Detail(c.UserContext(), id)
	if errors.Is(err, services.ErrProductNotFound) {
		return notFound(c, fiber.StatusNotFound, "Producto no encontrado")
	}
	if err != nil {
		log.Error(c, "product.detail.fail", err, map[string]any{"product_id": id})
		return notFound(c, fiber.StatusBadGateway, services.UserMessage(err))
	}
	return render(c, "product", fiber.Map{"P": d.Product, "Detail": d})
}

// POST /productos/:id/carro adds the product, creating the cart on first use.
func (h *ProductHandler) AddToCart(c *fiber.Ctx) error {
	sc := sessionOf(c)
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "product"})
		return c.Status(fiber.StatusBadRequest).SendString("producto inválido")
	}
	qty, ok := validate.Qty(c.FormValue("cantidad", "1"))
	if !ok {
		qty = 1
	}
	back := c.FormValue("back")
	if back != "/carro" {
		back = "/productos/" + id
	}

	if err := h.Cart.AddProduct(c.UserContext(), sc, id, qty); err != nil {
		log.Warn(c, "cart.add.fail", err, map[string]any{"product_id": id, "qty": qty})
		flashLocal(h.Flash, sc.SessionID, err)
		return c.Redirect(back)
	}
	log.Info(c, "cart.add", map[string]any{"product_id": id, "qty": qty})
	return c.Redirect(back)
}
