package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	applog "qmd/internal/log"
	"qmd/internal/services"
	"qmd/internal/session"
)

const sidCookie = "sid"

func ensureSID(c *fiber.Ctx) string {
	sid := c.Cookies(sidCookie)
	if _, err := uuid.Parse(sid); err != nil {
		sid = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     sidCookie,
			Value:    sid,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
			Secure:   false,
			Expires:  time.Now().Add(7 * 24 * time.Hour),
		})
		// later handlers in this request read the cookie
		c.Request().Header.SetCookie(sidCookie, sid)
	}
	return sid
}

// LoadSession makes sure the browser has a sid cookie and loads its session
// context, the citizen header data and the unread count into Locals.
func LoadSession(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := ensureSID(c)
		sc, err := d.Sessions.Load(c.UserContext(), sid)
		if err != nil {
			applog.Error(c, "session.load.fail", err, nil)
			sc = session.Context{SessionID: sid}
		}
		c.Locals("session", sc)
		c.Locals("flash", d.Flash)
		if sc.HasCitizen() && c.Method() == fiber.MethodGet {
			if cit, err := d.Auth.CurrentCitizen(c.UserContext(), sc); err == nil && cit != nil {
				c.Locals("citizen", cit)
			}
			if ns, err := d.Notifs.List(c.UserContext(), sc); err == nil {
				c.Locals("unread", services.Unread(ns))
			}
		}
		return c.Next()
	}
}

func sessionOf(c *fiber.Ctx) session.Context {
	sc, _ := c.Locals("session").(session.Context)
	if sc.SessionID == "" {
		sc.SessionID = c.Cookies(sidCookie)
	}
	return sc
}

// RequireCitizen sends the browser to the citizen selector when none is bound.
func RequireCitizen() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !sessionOf(c).HasCitizen() {
			return c.Redirect("/login")
		}
		return c.Next()
	}
}

// RequireAdmin enforces a usable admin token; otherwise redirect to admin login.
func RequireAdmin(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sc := sessionOf(c)
		if !auth.AdminAuthorized(sc) {
			applog.Security(c, "access.denied.admin", map[string]any{"has_token": sc.AdminToken != ""})
			if sc.AdminToken != "" {
				_ = auth.AdminLogout(c.UserContext(), sc.SessionID)
			}
			return c.Redirect("/admin-login")
		}
		return c.Next()
	}
}
