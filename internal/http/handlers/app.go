package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	applog "qmd/internal/log"
)

type AppOptions struct {
	TemplatesDir string
	// served under /static when set
	StaticDir string
	// requests per minute per IP; zero disables the global limiter
	RateLimit int
	// admin login attempts per 10 minutes per IP
	LoginLimit int
	// access log middleware, written through applog's current output
	AccessLog bool
}

// ErrorHandler logs the failure and renders a friendly page without internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Ocurrió un error inesperado. Intenta de nuevo."
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code == fiber.StatusNotFound {
			msg = "Página no encontrada"
		}
	}
	if code >= fiber.StatusInternalServerError {
		applog.Error(c, "server.error", err, nil)
	}
	if rerr := c.Status(code).Render("notfound", fiber.Map{"Message": msg}); rerr != nil {
		return c.Status(code).SendString(msg)
	}
	return nil
}

// NewApp builds the portal: middlewares, routes and the 404 fallback.
func NewApp(d *Deps, opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		Views:        NewEngine(opts.TemplatesDir),
		ErrorHandler: ErrorHandler,
	})
	// Global body size guard
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	app.Use(requestid.New())
	if opts.AccessLog {
		// access lines go to the same sink as the action log
		app.Use(logger.New(logger.Config{Output: applog.Logger()}))
	}
	app.Use(helmet.New())
	if opts.StaticDir != "" {
		app.Static("/static", opts.StaticDir)
	}
	if opts.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return strings.HasPrefix(c.Path(), "/static/") || c.Path() == "/healthz"
			},
		}))
	}
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "form:csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		CookieSecure:   false, // set true behind HTTPS
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"err": err.Error()})
			return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "La verificación de seguridad falló. Recarga la página e intenta de nuevo."})
		},
	}))
	app.Use(func(c *fiber.Ctx) error {
		if tok, ok := c.Locals("csrf").(string); ok {
			c.Locals("CSRFToken", tok)
		}
		return c.Next()
	})
	app.Use(LoadSession(d))

	Register(app, d, opts)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "Página no encontrada"})
	})
	return app
}

// Register mounts every portal route.
func Register(app *fiber.App, d *Deps, opts AppOptions) {
	citizen := RequireCitizen()

	app.Get("/", func(c *fiber.Ctx) error { return c.Redirect("/productos") })
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })

	// Citizen selection
	app.Get("/login", d.AuthHandler.LoginForm)
	app.Post("/login", d.AuthHandler.Login)
	app.Post("/logout", d.AuthHandler.Logout)

	// Catalog
	app.Get("/productos", d.SearchHandler.Search)
	app.Get("/productos/:id", d.ProductHandler.Detail)
	app.Post("/productos/:id/carro", citizen, d.ProductHandler.AddToCart)

	// Cart and selector
	app.Get("/carro", d.CartHandler.View)
	app.Post("/carro/lineas/:lineId/incrementar", citizen, d.CartHandler.Increment)
	app.Post("/carro/lineas/:lineId/decrementar", citizen, d.CartHandler.Decrement)
	app.Post("/carro/lineas/:lineId/cantidad", citizen, d.CartHandler.SetQuantity)
	app.Post("/carro/lineas/:lineId/eliminar", citizen, d.CartHandler.Remove)
	app.Post("/carro/tramitar", citizen, d.CartHandler.Submit)
	app.Post("/carro/nuevo", citizen, d.CartHandler.StartNew)
	app.Get("/carro/selector", citizen, d.SelectorHandler.View)
	app.Post("/carro/selector", citizen, d.SelectorHandler.Select)
	app.Post("/carro/selector/nuevo", citizen, d.SelectorHandler.Create)
	app.Post("/carro/selector/quitar", citizen, d.SelectorHandler.Deselect)

	// Notifications
	app.Get("/notificaciones", citizen, d.NotificationHandler.List)
	app.Post("/notificaciones/leidas", citizen, d.NotificationHandler.MarkAllRead)
	app.Post("/notificaciones/:id/leida", citizen, d.NotificationHandler.MarkRead)
	app.Post("/notificaciones/:id/ocultar", citizen, d.NotificationHandler.Dismiss)

	api := app.Group("/api/v1")
	api.Get("/carro", d.CartHandler.JSON)

	// Admin (login throttled)
	loginMax := opts.LoginLimit
	if loginMax <= 0 {
		loginMax = 5
	}
	app.Get("/admin-login", d.AuthHandler.AdminLoginForm)
	app.Post("/admin-login", limiter.New(limiter.Config{
		Max:        loginMax,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			c.Status(fiber.StatusTooManyRequests)
			return render(c, "admin_login", fiber.Map{"Err": "Demasiados intentos. Intenta más tarde.", "Email": ""})
		},
	}), d.AuthHandler.AdminLogin)
	app.Post("/admin-logout", d.AuthHandler.AdminLogout)

	admin := app.Group("/admin-panel", RequireAdmin(d.Auth))
	admin.Get("/", d.AdminHandler.Citizens)
	admin.Get("/ciudadanos/nuevo", d.AdminHandler.NewCitizenForm)
	admin.Post("/ciudadanos", d.AdminHandler.CreateCitizen)
	admin.Get("/ciudadanos/:id", d.AdminHandler.CitizenPage)
	admin.Get("/ciudadanos/:id/editar", d.AdminHandler.EditCitizenForm)
	admin.Post("/ciudadanos/:id", d.AdminHandler.UpdateCitizen)
	admin.Post("/ciudadanos/:id/eliminar", d.AdminHandler.DeleteCitizen)
	admin.Get("/carros/:id", d.AdminHandler.Cart)
	admin.Post("/carros/:id", d.AdminHandler.UpdateCartMeta)
}
