package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"qmd/internal/http/handlers"
)

func TestCartPageWithoutCitizen(t *testing.T) {
	p := newPortal(t, handlers.AppOptions{})

	resp := p.get(t, "/carro")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(bodyOf(t, resp), `data-state="no-citizen"`) {
		t.Fatal("expected the no-citizen state")
	}

	expectRedirect(t, p.post(t, "/carro/tramitar", nil), "/login")
	if code, _ := p.cart(t); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from the JSON cart, got %d", code)
	}
}

func TestCitizenLoginRejectsUnknownCitizen(t *testing.T) {
	p := newPortal(t, handlers.AppOptions{})
	resp := p.post(t, "/login", url.Values{"citizenId": {"999"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(bodyOf(t, resp), "Ciudadano no encontrado") {
		t.Fatal("expected the API message inline")
	}
}

func TestCartFlow_AddEditRemoveSubmit(t *testing.T) {
	p := newPortal(t, handlers.AppOptions{})
	cid := p.srv.AddCitizen("Ana", "Pérez", "10010001")
	a := p.srv.AddProduct("Cuaderno", 1000, 10)
	b := p.srv.AddProduct("Lápiz", 2500, 10)
	p.selectCitizen(t, cid)

	expectRedirect(t, p.post(t, "/productos/"+a+"/carro", url.Values{"cantidad": {"2"}}), "/productos/"+a)
	expectRedirect(t, p.post(t, "/productos/"+b+"/carro", url.Values{"cantidad": {"1"}}), "/productos/"+b)

	code, cart := p.cart(t)
	if code != http.StatusOK || len(cart.Lines) != 2 || cart.Total != "4500.00" {
		t.Fatalf("unexpected cart after adds: %d %+v", code, cart)
	}
	lineA, lineB := cart.Lines[0].ID, cart.Lines[1].ID

	expectRedirect(t, p.post(t, "/carro/lineas/"+lineA+"/incrementar", nil), "/carro")
	if _, cart = p.cart(t); cart.Total != "5500.00" || cart.Lines[0].Cantidad != 3 {
		t.Fatalf("increment not applied: %+v", cart)
	}

	// a quantity below one is ignored without calling the API
	puts := p.srv.Calls("PUT /carro/{carroId}/detalle/{detalleId}")
	expectRedirect(t, p.post(t, "/carro/lineas/"+lineA+"/cantidad", url.Values{"cantidad": {"0"}}), "/carro")
	if got := p.srv.Calls("PUT /carro/{carroId}/detalle/{detalleId}"); got != puts {
		t.Fatalf("expected no PUT for quantity 0, got %d more", got-puts)
	}
	if _, cart = p.cart(t); cart.Lines[0].Cantidad != 3 {
		t.Fatalf("quantity changed: %+v", cart)
	}

	expectRedirect(t, p.post(t, "/carro/lineas/"+lineB+"/eliminar", nil), "/carro")
	if _, cart = p.cart(t); len(cart.Lines) != 1 || cart.Total != "3000.00" {
		t.Fatalf("remove not applied: %+v", cart)
	}

	entries := captureLogs(t, func() {
		expectRedirect(t, p.post(t, "/carro/tramitar", nil), "/carro")
	})
	if !hasAction(entries, "cart.submit") {
		t.Fatal("expected cart.submit audit entry")
	}
	if p.srv.Stock(a) != 7 {
		t.Fatalf("expected stock 7 after submit, got %d", p.srv.Stock(a))
	}

	body := bodyOf(t, p.get(t, "/carro"))
	if !strings.Contains(body, `data-state="submitted"`) || !strings.Contains(body, "Carro tramitado exitosamente") {
		t.Fatalf("expected submitted confirmation with flash; body=%s", body)
	}

	// a new cart can be started
	expectRedirect(t, p.post(t, "/carro/nuevo", nil), "/carro")
	code, fresh := p.cart(t)
	if code != http.StatusOK || fresh.ID == "" || fresh.ID == cart.ID || len(fresh.Lines) != 0 {
		t.Fatalf("expected a new empty cart: %d %+v", code, fresh)
	}
}

func TestCartAdd_StockConflictIsShown(t *testing.T) {
	p := newPortal(t, handlers.AppOptions{})
	cid := p.srv.AddCitizen("Ana", "Pérez", "10010001")
	x := p.srv.AddProduct("Agenda", 300, 2)
	p.selectCitizen(t, cid)

	expectRedirect(t, p.post(t, "/productos/"+x+"/carro", url.Values{"cantidad": {"5"}}), "/productos/"+x)
	body := bodyOf(t, p.get(t, "/carro"))
	if !strings.Contains(body, "Stock insuficiente para Agenda") {
		t.Fatalf("expected stock conflict message; body=%s", body)
	}
	if _, cart := p.cart(t); len(cart.Lines) != 0 {
		t.Fatalf("conflicting add must not change the cart: %+v", cart)
	}
}

func TestCartEdit_FailureRevertsAndNotifies(t *testing.T) {
	p := newPortal(t, handlers.AppOptions{})
	cid := p.srv.AddCitizen("Ana", "Pérez", "10010001")
	a := p.srv.AddProduct("Cuaderno", 1000, 10)
	p.selectCitizen(t, cid)
	p.post(t, "/productos/"+a+"/carro", url.Values{"cantidad": {"1"}})
	_, cart := p.cart(t)

	p.srv.Fail("PUT /carro/{carroId}/detalle/{detalleId}", http.StatusInternalServerError)
	expectRedirect(t, p.post(t, "/carro/lineas/"+cart.Lines[0].ID+"/incrementar", nil), "/carro")

	body := bodyOf(t, p.get(t, "/carro"))
	if !strings.Contains(body, "Error al actualizar cantidad") {
		t.Fatalf("expected revert notification; body=%s", body)
	}
	if _, cart = p.cart(t); cart.Lines[0].Cantidad != 1 || cart.Total != "1000.00" {
		t.Fatalf("expected reverted quantity: %+v", cart)
	}
}

func TestSelector_SelectCreateDeselect(t *testing.T) {
	p := newPortal(t, handlers.AppOptions{})
	ana := p.srv.AddCitizen("Ana", "Pérez", "10010001")
	luis := p.srv.AddCitizen("Luis", "Gómez", "20020002")
	a := p.srv.AddProduct("Cuaderno", 1000, 10)
	mine := p.srv.AddCart(ana, a, 2)
	foreign := p.srv.AddCart(luis)
	p.selectCitizen(t, ana)

	body := bodyOf(t, p.get(t, "/carro/selector"))
	if !strings.Contains(body, `name="carroId" value="`+mine+`"`) {
		t.Fatalf("expected the citizen's cart in the list; body=%s", body)
	}

	expectRedirect(t, p.post(t, "/carro/selector", url.Values{"carroId": {foreign}}), "/carro/selector")
	if !strings.Contains(bodyOf(t, p.get(t, "/carro/selector")), "El carro no pertenece al ciudadano") {
		t.Fatal("expected ownership error")
	}

	expectRedirect(t, p.post(t, "/carro/selector", url.Values{"carroId": {mine}}), "/carro")
	if _, cart := p.cart(t); cart.ID != mine || cart.Total != "2000.00" {
		t.Fatalf("expected selected cart: %+v", cart)
	}

	expectRedirect(t, p.post(t, "/carro/selector/quitar", nil), "/carro/selector")
	if code, _ := p.cart(t); code != http.StatusNotFound {
		t.Fatalf("expected no active cart, got %d", code)
	}

	expectRedirect(t, p.post(t, "/carro/selector/nuevo", nil), "/carro")
	if _, cart := p.cart(t); cart.ID != mine {
		t.Fatalf("fetch-or-create should return the open cart, got %+v", cart)
	}
}

func TestNotifications_ReadAndDismiss(t *testing.T) {
	p := newPortal(t, handlers.AppOptions{})
	cid := p.srv.AddCitizen("Ana", "Pérez", "10010001")
	p.srv.AddNotification(cid, map[string]any{"id": 5, "mensaje": "Carro tramitado", "fecha": "2024-05-02", "tipo": "success"})
	p.srv.AddNotification(cid, map[string]any{"mensaje": "Bienvenida", "fecha": "2024-05-01"})
	p.selectCitizen(t, cid)

	body := bodyOf(t, p.get(t, "/notificaciones"))
	if strings.Count(body, `unread"`) != 2 {
		t.Fatalf("expected two unread notifications; body=%s", body)
	}
	if !strings.Contains(body, "02/05/2024") {
		t.Fatal("expected formatted date")
	}

	expectRedirect(t, p.post(t, "/notificaciones/5/leida", nil), "/notificaciones")
	expectRedirect(t, p.post(t, "/notificaciones/notif-1/ocultar", nil), "/notificaciones")
	body = bodyOf(t, p.get(t, "/notificaciones"))
	if strings.Contains(body, "Bienvenida") {
		t.Fatal("dismissed notification still shown")
	}
	if !strings.Contains(body, "notif-success read") {
		t.Fatalf("expected the first notification marked read; body=%s", body)
	}
}

func TestCSRFRequiredOnPost(t *testing.T) {
	p := newPortal(t, handlers.AppOptions{})
	cid := p.srv.AddCitizen("Ana", "Pérez", "10010001")

	r := httptest.NewRequest("POST", "/login", strings.NewReader(url.Values{"citizenId": {cid}}.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := p.do(t, r)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", resp.StatusCode)
	}
}
