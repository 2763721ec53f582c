package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"qmd/internal/cartstore"
	applog "qmd/internal/log"
	"qmd/internal/qmdapi"
	"qmd/internal/services"
	"qmd/internal/validate"
)

type AdminHandler struct {
	Admin *services.AdminService
	Flash *services.FlashQueue
}

// fail maps an admin call error to a response. A rejected token sends the
// browser back to the admin login; the call is not retried.
func (h *AdminHandler) fail(c *fiber.Ctx, action string, err error, fields map[string]any) error {
	if errors.Is(err, qmdapi.ErrUnauthorized) {
		applog.Security(c, action+".unauthorized", fields)
		h.Flash.Push(sessionOf(c).SessionID, cartstore.KindWarning, services.UserMessage(err))
		return c.Redirect("/admin-login")
	}
	var apiErr *qmdapi.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return notFound(c, fiber.StatusNotFound, services.UserMessage(err))
	}
	applog.Error(c, action+".fail", err, fields)
	return notFound(c, fiber.StatusBadGateway, services.UserMessage(err))
}

func (h *AdminHandler) id(c *fiber.Ctx) (string, bool) {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "id"})
	}
	return id, ok
}

// GET /admin-panel
func (h *AdminHandler) Citizens(c *fiber.Ctx) error {
	list, err := h.Admin.Citizens(c.UserContext(), sessionOf(c))
	if err != nil {
		return h.fail(c, "admin.citizens.list", err, nil)
	}
	return render(c, "admin_citizens", fiber.Map{"Citizens": list})
}

func citizenForm(c *fiber.Ctx) services.CitizenForm {
	return services.CitizenForm{
		Cedula:          c.FormValue("cedula"),
		Nombre:          c.FormValue("nombre"),
		Apellido:        c.FormValue("apellido"),
		Direccion:       c.FormValue("direccion"),
		Telefono:        c.FormValue("telefono"),
		Email:           c.FormValue("email"),
		FechaNacimiento: c.FormValue("fechaNacimiento"),
		Genero:          c.FormValue("genero"),
		Estado:          c.FormValue("estado"),
	}
}

func formPage(c *fiber.Ctx, status int, action, id string, f services.CitizenForm, errs services.FieldErrors, msg string) error {
	c.Status(status)
	return render(c, "admin_citizen_form", fiber.Map{
		"Action": action, "ID": id, "Form": f, "Errors": errs, "Err": msg,
	})
}

// GET /admin-panel/ciudadanos/nuevo
func (h *AdminHandler) NewCitizenForm(c *fiber.Ctx) error {
	return formPage(c, fiber.StatusOK, "/admin-panel/ciudadanos", "", services.CitizenForm{Estado: "activo"}, nil, "")
}

// POST /admin-panel/ciudadanos
func (h *AdminHandler) CreateCitizen(c *fiber.Ctx) error {
	f := citizenForm(c)
	created, err := h.Admin.CreateCitizen(c.UserContext(), sessionOf(c), f)
	var errs services.FieldErrors
	if errors.As(err, &errs) {
		applog.Security(c, "validation.fail", map[string]any{"form": "citizen", "fields": len(errs)})
		return formPage(c, fiber.StatusBadRequest, "/admin-panel/ciudadanos", "", f, errs, "")
	}
	if err != nil {
		if errors.Is(err, qmdapi.ErrUnauthorized) {
			return h.fail(c, "admin.citizens.create", err, nil)
		}
		applog.Error(c, "admin.citizens.create.fail", err, nil)
		return formPage(c, fiber.StatusBadGateway, "/admin-panel/ciudadanos", "", f, nil, services.UserMessage(err))
	}
	applog.Audit(c, "admin.citizens.create", map[string]any{"citizen_id": created.ID.String()})
	h.Flash.Push(sessionOf(c).SessionID, cartstore.KindSuccess, "Ciudadano creado")
	return c.Redirect("/admin-panel/ciudadanos/" + created.ID.String())
}

// GET /admin-panel/ciudadanos/:id shows the citizen with carts and history.
func (h *AdminHandler) CitizenPage(c *fiber.Ctx) error {
	id, ok := h.id(c)
	if !ok {
		return notFound(c, fiber.StatusNotFound, "Ciudadano no encontrado")
	}
	page, err := h.Admin.CitizenPage(c.UserContext(), sessionOf(c), id)
	if err != nil {
		return h.fail(c, "admin.citizens.view", err, map[string]any{"citizen_id": id})
	}
	return render(c, "admin_citizen", fiber.Map{"Page": page})
}

// GET /admin-panel/ciudadanos/:id/editar
func (h *AdminHandler) EditCitizenForm(c *fiber.Ctx) error {
	id, ok := h.id(c)
	if !ok {
		return notFound(c, fiber.StatusNotFound, "Ciudadano no encontrado")
	}
	cit, err := h.Admin.Citizen(c.UserContext(), sessionOf(c), id)
	if err != nil {
		return h.fail(c, "admin.citizens.edit", err, map[string]any{"citizen_id": id})
	}
	return formPage(c, fiber.StatusOK, "/admin-panel/ciudadanos/"+id, id, services.FormFromCitizen(*cit), nil, "")
}

// POST /admin-panel/ciudadanos/:id
func (h *AdminHandler) UpdateCitizen(c *fiber.Ctx) error {
	id, ok := h.id(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("ciudadano inválido")
	}
	f := citizenForm(c)
	err := h.Admin.UpdateCitizen(c.UserContext(), sessionOf(c), id, f)
	var errs services.FieldErrors
	if errors.As(err, &errs) {
		applog.Security(c, "validation.fail", map[string]any{"form": "citizen", "fields": len(errs)})
		return formPage(c, fiber.StatusBadRequest, "/admin-panel/ciudadanos/"+id, id, f, errs, "")
	}
	if err != nil {
		return h.fail(c, "admin.citizens.update", err, map[string]any{"citizen_id": id})
	}
	applog.Audit(c, "admin.citizens.update", map[string]any{"citizen_id": id})
	h.Flash.Push(sessionOf(c).SessionID, cartstore.KindSuccess, "Ciudadano actualizado")
	return c.Redirect("/admin-panel/ciudadanos/" + id)
}

// POST /admin-panel/ciudadanos/:id/eliminar
func (h *AdminHandler) DeleteCitizen(c *fiber.Ctx) error {
	id, ok := h.id(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("ciudadano inválido")
	}
	if err := h.Admin.DeleteCitizen(c.UserContext(), sessionOf(c), id); err != nil {
		return h.fail(c, "admin.citizens.delete", err, map[string]any{"citizen_id": id})
	}
	applog.Audit(c, "admin.citizens.delete", map[string]any{"citizen_id": id})
	h.Flash.Push(sessionOf(c).SessionID, cartstore.KindSuccess, "Ciudadano eliminado")
	return c.Redirect("/admin-panel")
}

// GET /admin-panel/carros/:id
func (h *AdminHandler) Cart(c *fiber.Ctx) error {
	return h.cartPage(c, fiber.StatusOK, nil, "")
}

func (h *AdminHandler) cartPage(c *fiber.Ctx, status int, errs services.FieldErrors, msg string) error {
	id, ok := h.id(c)
	if !ok {
		return notFound(c, fiber.StatusNotFound, "Carro no encontrado")
	}
	cart, err := h.Admin.Cart(c.UserContext(), sessionOf(c), id)
	if err != nil {
		return h.fail(c, "admin.cart.view", err, map[string]any{"cart_id": id})
	}
	c.Status(status)
	return render(c, "admin_cart", fiber.Map{"Cart": cart, "Errors": errs, "Err": msg})
}

// POST /admin-panel/carros/:id edits descripcion, observaciones and concepto.
func (h *AdminHandler) UpdateCartMeta(c *fiber.Ctx) error {
	id, ok := h.id(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("carro inválido")
	}
	f := services.CartMetaForm{
		Descripcion:   c.FormValue("descripcion"),
		Observaciones: c.FormValue("observaciones"),
		Concepto:      c.FormValue("concepto"),
	}
	_, err := h.Admin.UpdateCartMeta(c.UserContext(), sessionOf(c), id, f)
	var errs services.FieldErrors
	if errors.As(err, &errs) {
		return h.cartPage(c, fiber.StatusBadRequest, errs, "")
	}
	if err != nil {
		return h.fail(c, "admin.cart.meta", err, map[string]any{"cart_id": id})
	}
	applog.Audit(c, "admin.cart.meta", map[string]any{"cart_id": id})
	h.Flash.Push(sessionOf(c).SessionID, cartstore.KindSuccess, "Carro actualizado")
	return c.Redirect("/admin-panel/carros/" + id)
}
