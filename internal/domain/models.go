package domain

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ID is a remote identifier. The QMD API sends ids as JSON numbers in some
// endpoints and as strings in others; both decode to the same string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type Product struct {
	ID                  ID              `json:"id"`
	Nombre              string          `json:"nombre"`
	Descripcion         string          `json:"descripcion,omitempty"`
	Precio              decimal.Decimal `json:"precio"`
	Codigo              string          `json:"codigo,omitempty"`
	CategoriaPrincipal  string          `json:"categoriaPrincipal,omitempty"`
	CategoriaSecundaria string          `json:"categoriaSecundaria,omitempty"`
	Stock               *int            `json:"stock,omitempty"`
	Estado              string          `json:"estado,omitempty"`
	Detalle             string          `json:"detalle,omitempty"`
	Caracteristicas     string          `json:"caracteristicas,omitempty"`
	Garantia            string          `json:"garantia,omitempty"`
}

// InStock reports false only when the API sent an explicit zero stock.
func (p Product) InStock() bool { return p.Stock == nil || *p.Stock > 0 }

// LineItem is a "detalle": one product and its quantity inside a cart.
type LineItem struct {
	ID       ID              `json:"id"`
	CarroID  ID              `json:"carroId,omitempty"`
	Producto Product         `json:"producto"`
	Cantidad int             `json:"cantidad"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ExpectedSubtotal is cantidad x precio, the settled value of Subtotal.
func (d LineItem) ExpectedSubtotal() decimal.Decimal {
	return d.Producto.Precio.Mul(decimal.NewFromInt(int64(d.Cantidad)))
}

const (
	CartOpen      = "abierto"
	CartSubmitted = "tramitado"
)

type Cart struct {
	ID            ID              `json:"id"`
	CiudadanoID   ID              `json:"ciudadanoId,omitempty"`
	Codigo        string          `json:"codigo,omitempty"`
	Estado        string          `json:"estado,omitempty"`
	Fecha         string          `json:"fecha,omitempty"`
	Descripcion   string          `json:"descripcion,omitempty"`
	Observaciones string          `json:"observaciones,omitempty"`
	Concepto      string          `json:"concepto,omitempty"`
	Detalles      []LineItem      `json:"detalles,omitempty"`
	Total         decimal.Decimal `json:"total"`
}

// Submitted reports whether the cart reached its terminal state.
func (c Cart) Submitted() bool { return c.Estado == CartSubmitted }

// CartSummary is a row of the cart list and of the submitted-carts history.
type CartSummary struct {
	ID                ID              `json:"id"`
	Codigo            string          `json:"codigo,omitempty"`
	Estado            string          `json:"estado,omitempty"`
	Fecha             string          `json:"fecha,omitempty"`
	CantidadProductos int             `json:"cantidadProductos,omitempty"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Total             decimal.Decimal `json:"total"`
}

// Amount prefers the precomputed subtotal and falls back to total.
func (s CartSummary) Amount() decimal.Decimal {
	if !s.Subtotal.IsZero() {
		return s.Subtotal
	}
	return s.Total
}

// ProductSale is one purchase line of a product, joined with its cart and buyer.
type ProductSale struct {
	ID                ID              `json:"id"`
	CarroCodigo       string          `json:"carroCodigo"`
	CarroEstado       string          `json:"carroEstado"`
	CarroFecha        string          `json:"carroFecha"`
	CiudadanoNombre   string          `json:"ciudadanoNombre"`
	CiudadanoApellido string          `json:"ciudadanoApellido"`
	CiudadanoCedula   string          `json:"ciudadanoCedula"`
	CiudadanoEmail    string          `json:"ciudadanoEmail"`
	Cantidad          int             `json:"cantidad"`
	Monto             decimal.Decimal `json:"monto"`
	Subtotal          decimal.Decimal `json:"subtotal"`
}

type Notification struct {
	ID      ID     `json:"id,omitempty"`
	Mensaje string `json:"mensaje"`
	Fecha   string `json:"fecha"`
	Leida   bool   `json:"leida,omitempty"`
	Tipo    string `json:"tipo,omitempty"` // info | success | warning | error
}
