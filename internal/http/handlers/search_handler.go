package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"qmd/internal/log"
	"qmd/internal/services"
	"qmd/internal/validate"
)

type SearchHandler struct {
	Catalog *services.CatalogService
}

// GET /productos lists the catalog, optionally filtered by q and categoria.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	rawQ := c.Query("q")
	q := ""
	if strings.TrimSpace(rawQ) != "" {
		var ok bool
		q, ok = validate.Q(rawQ)
		if !ok {
			log.Security(c, "validation.fail", map[string]any{"field": "q", "value": rawQ})
			c.Status(fiber.StatusBadRequest)
			return render(c, "products", fiber.Map{
				"Q": "", "Products": nil, "Count": 0, "Err": "Ingresa una búsqueda válida (solo letras y números)",
			})
		}
	}
	category, _ := validate.Text(c.Query("categoria"), 60)

	all, err := h.Catalog.List(c.UserContext())
	if err != nil {
		log.Error(c, "products.list.fail", err, nil)
		c.Status(fiber.StatusBadGateway)
		return render(c, "products", fiber.Map{"Q": q, "Products": nil, "Count": 0, "Err": services.UserMessage(err)})
	}
	products := services.FilterProducts(all, q, category)
	return render(c, "products", fiber.Map{
		"Q": q, "Category": category, "Categories": services.Categories(all),
		"Products": products, "Count": len(products),
	})
}
