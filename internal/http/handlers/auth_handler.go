package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"qmd/internal/cartstore"
	"qmd/internal/log"
	"qmd/internal/services"
	"qmd/internal/validate"
)

type AuthHandler struct {
	Auth  *services.AuthService
	Cart  *services.CartService
	Flash *services.FlashQueue
}

// GET /login lists the citizens to act for.
func (h *AuthHandler) LoginForm(c *fiber.Ctx) error {
	return h.loginPage(c, fiber.StatusOK, "")
}

func (h *AuthHandler) loginPage(c *fiber.Ctx, status int, msg string) error {
	citizens, err := h.Auth.Citizens(c.UserContext())
	if err != nil {
		log.Error(c, "citizens.list.fail", err, nil)
		msg = services.UserMessage(err)
	}
	c.Status(status)
	return render(c, "login", fiber.Map{"Citizens": citizens, "Err": msg})
}

// POST /login binds the chosen citizen to the session.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	sc := sessionOf(c)
	id, ok := validate.ID(c.FormValue("citizenId"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "citizenId"})
		return h.loginPage(c, fiber.StatusBadRequest, "Por favor, selecciona un ciudadano")
	}
	cit, err := h.Auth.Login(c.UserContext(), sc.SessionID, id)
	if err != nil {
		log.Warn(c, "auth.citizen.fail", err, map[string]any{"citizen_id": id})
		return h.loginPage(c, fiber.StatusBadRequest, services.UserMessage(err))
	}
	// a previous citizen's cart must not leak into this one
	h.Cart.Forget(sc.SessionID)
	log.Audit(c, "auth.citizen.select", map[string]any{"citizen_id": id})
	h.Flash.Push(sc.SessionID, cartstore.KindSuccess, "Bienvenido, "+cit.FullName())
	return c.Redirect("/productos")
}

// POST /logout clears the citizen and cart. The admin token is kept.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sc := sessionOf(c)
	if err := h.Auth.Logout(c.UserContext(), sc.SessionID); err != nil {
		log.Error(c, "auth.logout.fail", err, nil)
	}
	h.Cart.Forget(sc.SessionID)
	log.Audit(c, "auth.logout", map[string]any{"citizen_id": sc.CitizenID})
	return c.Redirect("/login")
}

func (h *AuthHandler) AdminLoginForm(c *fiber.Ctx) error {
	return render(c, "admin_login", fiber.Map{"Err": "", "Email": ""})
}

func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	sc := sessionOf(c)
	email := c.FormValue("email")
	err := h.Auth.AdminLogin(c.UserContext(), sc.SessionID, email, c.FormValue("password"))
	if errors.Is(err, services.ErrBadCreds) {
		log.Security(c, "auth.admin.fail", map[string]any{"email": email})
		c.Status(fiber.StatusUnauthorized)
		return render(c, "admin_login", fiber.Map{"Err": "Correo o contraseña inválidos", "Email": email})
	}
	if err != nil {
		log.Error(c, "auth.admin.error", err, nil)
		c.Status(fiber.StatusBadGateway)
		return render(c, "admin_login", fiber.Map{"Err": services.UserMessage(err), "Email": email})
	}
	log.Audit(c, "auth.admin.success", map[string]any{"email": email})
	return c.Redirect("/admin-panel")
}

func (h *AuthHandler) AdminLogout(c *fiber.Ctx) error {
	sc := sessionOf(c)
	_ = h.Auth.AdminLogout(c.UserContext(), sc.SessionID)
	log.Audit(c, "auth.admin.logout", nil)
	return c.Redirect("/admin-login")
}
