package qmdapi

import (
	"context"
	"net/http"

	"qmd/internal/domain"
)

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := c.do(ctx, call{op: "productos.lista", method: http.MethodGet, path: "/productos", out: &out})
	return out, err
}

type salesEnvelope struct {
	Detalles []domain.ProductSale `json:"detalles"`
}

// ListProductSales returns the purchase lines of one product across all carts.
func (c *Client) ListProductSales(ctx context.Context, productoID string) ([]domain.ProductSale, error) {
	var env salesEnvelope
	err := c.do(ctx, call{op: "productos.detalles", method: http.MethodGet,
		path: "/productos/" + seg(productoID) + "/detalles", out: &env})
	return env.Detalles, err
}
