package qmdapi

import (
	"context"
	"net/http"

	"qmd/internal/domain"
)

// cartEnvelope accepts both the flat cart shape and {carro, detalles, total}.
type cartEnvelope struct {
	domain.Cart
	Carro *domain.Cart `json:"carro"`
}

func (e cartEnvelope) cart() *domain.Cart {
	out := e.Cart
	if e.Carro != nil {
		nested := *e.Carro
		if len(nested.Detalles) == 0 {
			nested.Detalles = e.Detalles
		}
		if nested.Total.IsZero() {
			nested.Total = e.Total
		}
		out = nested
	}
	for i := range out.Detalles {
		if out.Detalles[i].CarroID == "" {
			out.Detalles[i].CarroID = out.ID
		}
	}
	return &out
}

// FetchOrCreateCart returns the citizen's open cart, creating it when absent.
func (c *Client) FetchOrCreateCart(ctx context.Context, ciudadanoID string) (*domain.Cart, error) {
	var env cartEnvelope
	err := c.do(ctx, call{op: "carro.obtener", method: http.MethodGet,
		path: "/carro/" + seg(ciudadanoID), out: &env})
	if err != nil {
		return nil, err
	}
	return env.cart(), nil
}

// GetCart returns the full cart with its lines.
func (c *Client) GetCart(ctx context.Context, carroID string) (*domain.Cart, error) {
	var env cartEnvelope
	err := c.do(ctx, call{op: "carro.detalle", method: http.MethodGet,
		path: "/carro/detalle/" + seg(carroID), out: &env})
	if err != nil {
		return nil, err
	}
	cart := env.cart()
	if cart.ID == "" {
		cart.ID = domain.ID(carroID)
	}
	return cart, nil
}

func (c *Client) ListCarts(ctx context.Context, ciudadanoID string) ([]domain.CartSummary, error) {
	var out []domain.CartSummary
	err := c.do(ctx, call{op: "carro.lista", method: http.MethodGet,
		path: "/carro/lista/" + seg(ciudadanoID), out: &out})
	return out, err
}

type addProductReq struct {
	ProductoID string `json:"productoId"`
	Cantidad   int    `json:"cantidad"`
}

// AddProduct adds or increments a product line. Insufficient stock yields a
// *StockConflictError.
func (c *Client) AddProduct(ctx context.Context, carroID, productoID string, cantidad int) (*domain.LineItem, error) {
	var out domain.LineItem
	err := c.do(ctx, call{op: "carro.agregar", method: http.MethodPost,
		path: "/carro/" + seg(carroID) + "/producto",
		body: addProductReq{ProductoID: productoID, Cantidad: cantidad}, out: &out})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type setQuantityReq struct {
	Cantidad int `json:"cantidad"`
}

// SetQuantity sets a line's quantity. The returned line may be empty when the
// API answers without a body.
func (c *Client) SetQuantity(ctx context.Context, carroID, detalleID string, cantidad int) (*domain.LineItem, error) {
	var out domain.LineItem
	err := c.do(ctx, call{op: "carro.cantidad", method: http.MethodPut,
		path: "/carro/" + seg(carroID) + "/detalle/" + seg(detalleID),
		body: setQuantityReq{Cantidad: cantidad}, out: &out})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveLine(ctx context.Context, carroID, detalleID string) error {
	return c.do(ctx, call{op: "carro.eliminar", method: http.MethodDelete,
		path: "/carro/" + seg(carroID) + "/detalle/" + seg(detalleID)})
}

// Submit ("tramitar") closes the cart; the API decrements stock and stamps fecha.
func (c *Client) Submit(ctx context.Context, carroID string) (*domain.Cart, error) {
	var env cartEnvelope
	err := c.do(ctx, call{op: "carro.tramitar", method: http.MethodPost,
		path: "/carro/" + seg(carroID) + "/tramitar", out: &env})
	if err != nil {
		return nil, err
	}
	return env.cart(), nil
}

// CartMeta holds the admin-editable descriptive fields. Nil fields are omitted.
type CartMeta struct {
	Descripcion   *string `json:"descripcion,omitempty"`
	Observaciones *string `json:"observaciones,omitempty"`
	Concepto      *string `json:"concepto,omitempty"`
}

func (c *Client) UpdateCartMeta(ctx context.Context, token, carroID string, meta CartMeta) (*domain.Cart, error) {
	var env cartEnvelope
	err := c.do(ctx, call{op: "carro.editar", method: http.MethodPut, admin: true, token: token,
		path: "/carro/" + seg(carroID), body: meta, out: &env})
	if err != nil {
		return nil, err
	}
	return env.cart(), nil
}

// ListSubmittedCarts returns the citizen's historical carts with item count and total.
func (c *Client) ListSubmittedCarts(ctx context.Context, token, ciudadanoID string) ([]domain.CartSummary, error) {
	var out []domain.CartSummary
	err := c.do(ctx, call{op: "carro.tramitados", method: http.MethodGet, admin: true, token: token,
		path: "/carro/tramitados/" + seg(ciudadanoID), out: &out})
	return out, err
}
