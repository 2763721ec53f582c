package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	html "github.com/gofiber/template/html/v2"
	"github.com/shopspring/decimal"

	"qmd/internal/cartstore"
	"qmd/internal/qmdapi"
	"qmd/internal/services"
)

// NewEngine loads the page templates with the money and date helpers.
func NewEngine(dir string) *html.Engine {
	engine := html.New(dir, ".html")
	engine.AddFunc("money", Money)
	engine.AddFunc("fecha", Fecha)
	return engine
}

// Money formats an amount the way Colombian pesos are written: "$ 1.234.567,5".
// Four-digit amounts are grouped too ("$ 3.000").
func Money(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign, d = "-", d.Neg()
	}
	whole := d.Truncate(0).String()
	frac := strings.TrimRight(strings.TrimPrefix(d.Sub(d.Truncate(0)).StringFixed(2), "0."), "0")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return "$ " + sign + b.String()
}

// Fecha renders API dates as dd/mm/yyyy and leaves unknown formats untouched.
func Fecha(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			if len(s) > len("2006-01-02") {
				return t.Format("02/01/2006 15:04")
			}
			return t.Format("02/01/2006")
		}
	}
	return s
}

func render(c *fiber.Ctx, tmpl string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	sc := sessionOf(c)
	data["Session"] = sc
	if cit := c.Locals("citizen"); cit != nil {
		data["Citizen"] = cit
	}
	if n, ok := c.Locals("unread").(int); ok {
		if _, set := data["Unread"]; !set {
			data["Unread"] = n
		}
	}
	if flash, ok := c.Locals("flash").(*services.FlashQueue); ok {
		data["Flashes"] = flash.Drain(sc.SessionID)
	}
	// Pick up the token the CSRF middleware put into Locals
	tok, _ := c.Locals("CSRFToken").(string)
	if tok == "" {
		tok = c.Cookies("csrf_")
	}
	data["CSRFToken"] = tok
	return c.Render(tmpl, data)
}

// notFound renders the friendly error page with the given status.
func notFound(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).Render("notfound", fiber.Map{"Message": msg})
}

func isRemote(err error) bool {
	var apiErr *qmdapi.APIError
	if _, ok := qmdapi.IsStockConflict(err); ok {
		return true
	}
	return qmdapi.IsTransport(err) || errors.As(err, &apiErr)
}

// flashLocal reports errors raised before any remote call. Remote failures
// were already notified by the cart store.
func flashLocal(flash *services.FlashQueue, sid string, err error) {
	if err != nil && !isRemote(err) {
		flash.Push(sid, cartstore.KindError, services.UserMessage(err))
	}
}
