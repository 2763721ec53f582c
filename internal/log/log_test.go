package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestEntriesCarryRequestContext(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)

	app := fiber.New()
	app.Get("/carro", func(c *fiber.Ctx) error {
		c.Locals("requestid", "r-1")
		Warn(c, "cart.load.fail", errors.New("boom"), map[string]any{"cart_id": "c1"})
		return c.SendStatus(fiber.StatusNoContent)
	})
	req := httptest.NewRequest("GET", "/carro", nil)
	req.Header.Set("Cookie", "sid=abc")
	if _, err := app.Test(req); err != nil {
		t.Fatal(err)
	}

	var e map[string]any
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"level": "warn", "action": "cart.load.fail", "err": "boom",
		"path": "/carro", "method": "GET", "req_id": "r-1", "sid": "abc",
	}
	for k, v := range want {
		if e[k] != v {
			t.Fatalf("%s = %v, want %v", k, e[k], v)
		}
	}
	if f, _ := e["fields"].(map[string]any); f["cart_id"] != "c1" {
		t.Fatalf("fields = %v", e["fields"])
	}
	if _, ok := e["ts"]; !ok {
		t.Fatal("missing ts")
	}
}

func TestAuditWithoutRequest(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)

	Audit(nil, "sessions.purge", nil)

	var e map[string]any
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatal(err)
	}
	if e["level"] != "audit" || e["action"] != "sessions.purge" {
		t.Fatalf("unexpected entry %v", e)
	}
	if _, ok := e["path"]; ok {
		t.Fatal("no request fields expected")
	}
}
