package cartstore_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"qmd/internal/cartstore"
	"qmd/internal/domain"
	applog "qmd/internal/log"
	"qmd/internal/qmdapi"
)

func TestMain(m *testing.M) {
	applog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var errRemote = &qmdapi.APIError{Op: "test", Status: 500, Message: "boom"}

// gate parks a SetQuantity call for a given quantity until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
	err     error
}

func newGate(err error) *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{}), err: err}
}

// fakeAPI is an in-memory stand-in for the remote cart service.
type fakeAPI struct {
	mu        sync.Mutex
	carts     map[string]*domain.Cart
	products  map[string]domain.Product
	stock     map[string]int
	nextLine  int
	gates     map[int]*gate
	getErr    error
	setErr    error
	removeErr error
	addErr    error
	submitErr error
	setCalls  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		carts:    map[string]*domain.Cart{},
		products: map[string]domain.Product{},
		stock:    map[string]int{},
		gates:    map[int]*gate{},
		nextLine: 100,
	}
}

func (f *fakeAPI) product(id, nombre string, precio int64, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id] = domain.Product{ID: domain.ID(id), Nombre: nombre, Precio: decimal.NewFromInt(precio)}
	f.stock[id] = stock
}

// cart seeds an open cart; lines are (productID, cantidad) pairs.
func (f *fakeAPI) cart(id string, lines ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &domain.Cart{ID: domain.ID(id), Estado: domain.CartOpen, Total: decimal.NewFromInt(999)}
	for i := 0; i+1 < len(lines); i += 2 {
		p := f.products[lines[i].(string)]
		f.nextLine++
		c.Detalles = append(c.Detalles, domain.LineItem{
			ID:       domain.ID(fmt.Sprint(f.nextLine)),
			CarroID:  c.ID,
			Producto: p,
			Cantidad: lines[i+1].(int),
		})
	}
	f.carts[id] = c
}

func (f *fakeAPI) GetCart(_ context.Context, carroID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.carts[carroID]
	if !ok {
		return nil, &qmdapi.APIError{Op: "carro.detalle", Status: 404}
	}
	out := *c
	out.Detalles = append([]domain.LineItem(nil), c.Detalles...)
	return &out, nil
}

func (f *fakeAPI) AddProduct(_ context.Context, carroID, productoID string, cantidad int) (*domain.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	c := f.carts[carroID]
	if c == nil || c.Submitted() {
		return nil, &qmdapi.APIError{Op: "carro.agregar", Status: 400}
	}
	p := f.products[productoID]
	for i := range c.Detalles {
		if c.Detalles[i].Producto.ID.String() == productoID {
			want := c.Detalles[i].Cantidad + cantidad
			if want > f.stock[productoID] {
				return nil, f.conflict(p, want)
			}
			c.Detalles[i].Cantidad = want
			d := c.Detalles[i]
			return &d, nil
		}
	}
	if cantidad > f.stock[productoID] {
		return nil, f.conflict(p, cantidad)
	}
	f.nextLine++
	d := domain.LineItem{ID: domain.ID(fmt.Sprint(f.nextLine)), CarroID: c.ID, Producto: p, Cantidad: cantidad}
	c.Detalles = append(c.Detalles, d)
	return &d, nil
}

func (f *fakeAPI) conflict(p domain.Product, want int) error {
	return &qmdapi.StockConflictError{
		Status: 400, Message: "Stock insuficiente", Producto: p.Nombre,
		StockDisponible: f.stock[p.ID.String()], Solicitado: want, ProductoID: p.ID.String(),
	}
}

func (f *fakeAPI) SetQuantity(_ context.Context, carroID, detalleID string, cantidad int) (*domain.LineItem, error) {
	f.mu.Lock()
	f.setCalls++
	g := f.gates[cantidad]
	f.mu.Unlock()

	if g != nil {
		close(g.entered)
		<-g.release
		if g.err != nil {
			return nil, g.err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return nil, f.setErr
	}
	c := f.carts[carroID]
	if c == nil {
		return nil, &qmdapi.APIError{Op: "carro.cantidad", Status: 404}
	}
	for i := range c.Detalles {
		if c.Detalles[i].ID.String() == detalleID {
			p := c.Detalles[i].Producto
			if cantidad > f.stock[p.ID.String()] {
				return nil, f.conflict(p, cantidad)
			}
			c.Detalles[i].Cantidad = cantidad
			d := c.Detalles[i]
			return &d, nil
		}
	}
	return nil, &qmdapi.APIError{Op: "carro.cantidad", Status: 404}
}

func (f *fakeAPI) RemoveLine(_ context.Context, carroID, detalleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	c := f.carts[carroID]
	if c == nil {
		return &qmdapi.APIError{Op: "carro.eliminar", Status: 404}
	}
	for i := range c.Detalles {
		if c.Detalles[i].ID.String() == detalleID {
			c.Detalles = append(c.Detalles[:i], c.Detalles[i+1:]...)
			return nil
		}
	}
	return &qmdapi.APIError{Op: "carro.eliminar", Status: 404}
}

func (f *fakeAPI) Submit(_ context.Context, carroID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	c := f.carts[carroID]
	if c == nil {
		return nil, &qmdapi.APIError{Op: "carro.tramitar", Status: 404}
	}
	if c.Submitted() {
		return nil, &qmdapi.APIError{Op: "carro.tramitar", Status: 400, Message: "ya tramitado"}
	}
	for _, d := range c.Detalles {
		f.stock[d.Producto.ID.String()] -= d.Cantidad
	}
	c.Estado = domain.CartSubmitted
	c.Fecha = "2024-05-02T10:00:00Z"
	out := *c
	return &out, nil
}

type note struct {
	Kind    cartstore.Kind
	Message string
}

type recorder struct {
	mu    sync.Mutex
	notes []note
}

func (r *recorder) Notify(kind cartstore.Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{kind, message})
}

func (r *recorder) last() note {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return note{}
	}
	return r.notes[len(r.notes)-1]
}

func (r *recorder) kinds() []cartstore.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cartstore.Kind, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Kind)
	}
	return out
}

var _ cartstore.API = (*fakeAPI)(nil)
