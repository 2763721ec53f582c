// Package cartstore keeps the in-memory projection of one cart and reconciles
// optimistic edits against the QMD API, which stays the source of truth for
// lines, prices and stock.
package cartstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"qmd/internal/domain"
	applog "qmd/internal/log"
	"qmd/internal/qmdapi"
)

var (
	ErrNoCart           = errors.New("cartstore: no cart bound")
	ErrCartSubmitted    = errors.New("cartstore: cart already submitted")
	ErrInvalidQuantity  = errors.New("cartstore: quantity must be at least 1")
	ErrLineNotFound     = errors.New("cartstore: line item not found")
	ErrSubmitInProgress = errors.New("cartstore: submit already in progress")
)

// API is the part of the remote cart service the store talks to.
type API interface {
	GetCart(ctx context.Context, carroID string) (*domain.Cart, error)
	AddProduct(ctx context.Context, carroID, productoID string, cantidad int) (*domain.LineItem, error)
	SetQuantity(ctx context.Context, carroID, detalleID string, cantidad int) (*domain.LineItem, error)
	RemoveLine(ctx context.Context, carroID, detalleID string) error
	Submit(ctx context.Context, carroID string) (*domain.Cart, error)
}

// Status is the state of the whole snapshot.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusReady
	StatusError
	// StatusClosed is a cart loaded from the API that was already submitted.
	StatusClosed
	// StatusSubmitted follows a successful Submit through this store.
	StatusSubmitted
)

func (s Status) String() string {
	return [...]string{"empty", "loading", "ready", "error", "closed", "submitted"}[s]
}

// LineView is a line as rendered, with its reconciliation state.
type LineView struct {
	domain.LineItem
	State LineState
}

// Snapshot is a copy of the store state, safe to render.
type Snapshot struct {
	CartID      string
	Cart        domain.Cart // metadata only, Detalles is nil
	Status      Status
	Err         error
	Lines       []LineView
	Total       decimal.Decimal
	Submitting  bool
	SubmittedID string
	SubmittedAt time.Time
}

// Store holds one cart at a time. It is safe for concurrent use.
type Store struct {
	api    API
	notify Notifier
	now    func() time.Time

	mu          sync.Mutex
	gen         uint64
	cartID      string
	meta        domain.Cart
	lines       []*line
	total       decimal.Decimal
	status      Status
	err         error
	submitting  bool
	submittedID string
	submittedAt time.Time
	consumed    map[string]bool
}

// Option configures a Store in New.
type Option func(*Store)

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notify = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store talking to api. Notifications are dropped unless
// WithNotifier is given.
func New(api API, opts ...Option) *Store {
	s := &Store{
		api:      api,
		notify:   nopNotifier{},
		now:      time.Now,
		total:    decimal.Zero,
		consumed: map[string]bool{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the whole snapshot with the cart fetched from the API. On
// failure the store is left empty in StatusError. Ids submitted through this
// store are refused.
func (s *Store) Load(ctx context.Context, cartID string) error {
	return s.load(ctx, cartID, false)
}

// LoadReadOnly loads cartID in StatusClosed, whatever the API reports. It is
// how a cart submitted through this store is viewed again.
func (s *Store) LoadReadOnly(ctx context.Context, cartID string) error {
	return s.load(ctx, cartID, true)
}

func (s *Store) load(ctx context.Context, cartID string, readOnly bool) error {
	if cartID == "" {
		return ErrNoCart
	}
	s.mu.Lock()
	if s.consumed[cartID] && !readOnly {
		s.mu.Unlock()
		return fmt.Errorf("load %s: %w", cartID, ErrCartSubmitted)
	}
	s.gen++
	gen := s.gen
	s.cartID = cartID
	s.meta = domain.Cart{ID: domain.ID(cartID)}
	s.lines = nil
	s.total = decimal.Zero
	s.status = StatusLoading
	s.err = nil
	s.submittedID = ""
	s.submittedAt = time.Time{}
	s.mu.Unlock()

	cart, err := s.api.GetCart(ctx, cartID)

	s.mu.Lock()
	if gen != s.gen {
		// superseded by another Load, Reset or Submit
		s.mu.Unlock()
		return err
	}
	if err != nil {
		s.status = StatusError
		s.err = err
		s.mu.Unlock()
		applog.Error(nil, "cart.load.fail", err, map[string]any{"cart_id": cartID})
		s.notify.Notify(KindError, "Error al cargar el carro")
		return err
	}
	s.replace(cart, readOnly)
	s.mu.Unlock()
	return nil
}

// replace installs cart as the snapshot. Callers hold s.mu.
func (s *Store) replace(cart *domain.Cart, readOnly bool) {
	meta := *cart
	meta.Detalles = nil
	if meta.ID == "" {
		meta.ID = domain.ID(s.cartID)
	}
	s.meta = meta
	s.lines = make([]*line, 0, len(cart.Detalles))
	for _, d := range cart.Detalles {
		if d.Cantidad < 1 {
			continue
		}
		l := newLine(d)
		if !d.Subtotal.IsZero() && !d.Subtotal.Equal(l.item.Subtotal) {
			applog.Warn(nil, "cart.subtotal.drift", nil, map[string]any{
				"cart_id": s.cartID, "line_id": d.ID.String(),
				"server": d.Subtotal.String(), "computed": l.item.Subtotal.String(),
			})
		}
		s.lines = append(s.lines, l)
	}
	s.recompute()
	s.err = nil
	if readOnly || cart.Submitted() {
		s.status = StatusClosed
	} else {
		s.status = StatusReady
	}
}

func (s *Store) recompute() {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.item.Subtotal)
	}
	s.total = total
}

func (s *Store) find(lineID string) (int, *line) {
	for i, l := range s.lines {
		if l.item.ID.String() == lineID {
			return i, l
		}
	}
	return -1, nil
}

// editable reports why the bound cart cannot be changed. Callers hold s.mu.
func (s *Store) editable() error {
	switch {
	case s.status == StatusSubmitted || s.status == StatusClosed:
		return ErrCartSubmitted
	case s.cartID == "":
		return ErrNoCart
	}
	return nil
}

// SetQuantity applies q to the line at once and confirms it with the API. A
// rejected edit restores the last quantity the API confirmed. q < 1 is
// refused without touching any state.
func (s *Store) SetQuantity(ctx context.Context, lineID string, q int) error {
	if q < 1 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	_, l := s.find(lineID)
	if l == nil {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	gen, cartID := s.gen, s.cartID
	seq := l.begin(q)
	s.recompute()
	s.mu.Unlock()

	resp, err := s.api.SetQuantity(ctx, cartID, lineID, q)

	s.mu.Lock()
	if _, cur := s.find(lineID); gen != s.gen || cur != l {
		// cart reloaded or line removed meanwhile
		s.mu.Unlock()
		return err
	}
	if err != nil {
		reverted := l.fail(seq)
		s.recompute()
		s.mu.Unlock()
		applog.Warn(nil, "cart.quantity.fail", err, map[string]any{
			"cart_id": cartID, "line_id": lineID, "requested": q, "reverted": reverted,
		})
		if !reverted {
			// a newer edit owns the line now
			return err
		}
		if sc, ok := qmdapi.IsStockConflict(err); ok {
			s.notify.Notify(KindWarning, sc.Error())
		} else {
			s.notify.Notify(KindError, "Error al actualizar cantidad")
		}
		return err
	}
	confirmed := q
	if resp != nil {
		if resp.Cantidad >= 1 {
			confirmed = resp.Cantidad
		}
		if !resp.Producto.Precio.IsZero() {
			l.item.Producto.Precio = resp.Producto.Precio
		}
	}
	l.settle(seq, confirmed)
	s.recompute()
	s.mu.Unlock()
	return nil
}

// RemoveLineItem drops the line at once and deletes it remotely. When the API
// refuses, the line is put back where it was.
func (s *Store) RemoveLineItem(ctx context.Context, lineID string) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	idx, l := s.find(lineID)
	if l == nil {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	gen, cartID := s.gen, s.cartID
	s.lines = append(s.lines[:idx:idx], s.lines[idx+1:]...)
	s.recompute()
	s.mu.Unlock()

	err := s.api.RemoveLine(ctx, cartID, lineID)
	if err == nil {
		s.notify.Notify(KindInfo, "Producto eliminado del carro")
		return nil
	}

	s.mu.Lock()
	if gen == s.gen {
		if _, dup := s.find(lineID); dup == nil {
			if idx > len(s.lines) {
				idx = len(s.lines)
			}
			s.lines = append(s.lines[:idx], append([]*line{l}, s.lines[idx:]...)...)
			s.recompute()
		}
	}
	s.mu.Unlock()
	applog.Warn(nil, "cart.remove.fail", err, map[string]any{"cart_id": cartID, "line_id": lineID})
	s.notify.Notify(KindError, "Error al eliminar el producto")
	return err
}

// AddProduct adds q units of a product. The line id is assigned remotely, so
// the snapshot is reloaded after success; on failure it is left untouched.
func (s *Store) AddProduct(ctx context.Context, productID string, q int) error {
	if q < 1 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	cartID := s.cartID
	s.mu.Unlock()

	if _, err := s.api.AddProduct(ctx, cartID, productID, q); err != nil {
		applog.Warn(nil, "cart.add.fail", err, map[string]any{"cart_id": cartID, "product_id": productID, "qty": q})
		if sc, ok := qmdapi.IsStockConflict(err); ok {
			s.notify.Notify(KindWarning, sc.Error())
		} else {
			s.notify.Notify(KindError, "Error al agregar producto al carro")
		}
		return err
	}
	s.notify.Notify(KindSuccess, "Producto agregado al carro")
	return s.Load(ctx, cartID)
}

// Submit ("tramitar") closes the cart. On success the lines are cleared and the
// cart id is consumed: further activity needs a new cart. On failure nothing
// changes and nothing is retried.
func (s *Store) Submit(ctx context.Context) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.submitting {
		s.mu.Unlock()
		return ErrSubmitInProgress
	}
	s.submitting = true
	cartID := s.cartID
	s.mu.Unlock()

	resp, err := s.api.Submit(ctx, cartID)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.mu.Unlock()
		applog.Warn(nil, "cart.submit.fail", err, map[string]any{"cart_id": cartID})
		if sc, ok := qmdapi.IsStockConflict(err); ok {
			s.notify.Notify(KindWarning, sc.Error())
		} else {
			s.notify.Notify(KindError, "Error al tramitar el carro")
		}
		return err
	}
	at := s.now()
	if resp != nil && resp.Fecha != "" {
		if t, perr := time.Parse(time.RFC3339, resp.Fecha); perr == nil {
			at = t
		}
	}
	s.gen++
	s.consumed[cartID] = true
	s.cartID = ""
	s.lines = nil
	s.total = decimal.Zero
	s.status = StatusSubmitted
	s.err = nil
	s.submittedID = cartID
	s.submittedAt = at
	s.mu.Unlock()

	applog.Info(nil, "cart.submit", map[string]any{"cart_id": cartID})
	s.notify.Notify(KindSuccess, "Carro tramitado exitosamente")
	return nil
}

// Reset unbinds the cart. Submitted ids stay consumed.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cartID = ""
	s.meta = domain.Cart{}
	s.lines = nil
	s.total = decimal.Zero
	s.status = StatusEmpty
	s.err = nil
	s.submitting = false
	s.submittedID = ""
	s.submittedAt = time.Time{}
}

// CartID is the bound cart, empty after Submit or Reset.
func (s *Store) CartID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartID
}

func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Consumed reports whether cartID was submitted through this store.
func (s *Store) Consumed(cartID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed[cartID]
}

// Snapshot deep-copies the state for rendering.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		CartID:      s.cartID,
		Cart:        s.meta,
		Status:      s.status,
		Err:         s.err,
		Total:       s.total,
		Submitting:  s.submitting,
		SubmittedID: s.submittedID,
		SubmittedAt: s.submittedAt,
	}
	if len(s.lines) > 0 {
		snap.Lines = make([]LineView, len(s.lines))
		for i, l := range s.lines {
			snap.Lines[i] = LineView{LineItem: l.item, State: l.state}
		}
	}
	return snap
}
