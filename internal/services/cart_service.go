package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"qmd/internal/cartstore"
	applog "qmd/internal/log"
	"qmd/internal/qmdapi"
	"qmd/internal/session"
)

var ErrNoCitizen = errors.New("no citizen selected")

// ViewState is what the cart page shows.
type ViewState int

const (
	ViewNoCitizen ViewState = iota
	ViewNoCart
	ViewLoading
	ViewError
	ViewPopulated
	ViewSubmitted
)

func (v ViewState) String() string {
	return [...]string{"no-citizen", "no-cart", "loading", "error", "populated", "submitted"}[v]
}

type CartView struct {
	State    ViewState
	Cart     cartstore.Snapshot
	Error    string
	ReadOnly bool
}

// CartService owns one cart store per browser session and keeps it bound to
// the session's active cart id.
type CartService struct {
	API      *qmdapi.Client
	Sessions *session.Manager
	Flash    *FlashQueue

	mu     sync.Mutex
	stores map[string]*sessionStore
	now    func() time.Time
}

type sessionStore struct {
	st   *cartstore.Store
	used time.Time
}

func NewCartService(api *qmdapi.Client, sessions *session.Manager, flash *FlashQueue) *CartService {
	return &CartService{API: api, Sessions: sessions, Flash: flash, stores: map[string]*sessionStore{}, now: time.Now}
}

// WithClock is for tests that need to move time forward.
func (s *CartService) WithClock(now func() time.Time) *CartService {
	s.now = now
	return s
}

// Store returns the session's store, creating it on first use.
func (s *CartService) Store(sid string) *cartstore.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.stores[sid]
	if !ok {
		e = &sessionStore{st: cartstore.New(s.API, cartstore.WithNotifier(s.Flash.For(sid)))}
		s.stores[sid] = e
	}
	e.used = s.now()
	return e.st
}

// Sweep drops the stores of sessions idle for longer than idle, the same
// lifetime the session backend gives its entries. It returns how many went.
func (s *CartService) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sid, e := range s.stores {
		if e.used.Before(cutoff) {
			delete(s.stores, sid)
			n++
		}
	}
	return n
}

// Forget drops the session's store, e.g. on logout.
func (s *CartService) Forget(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, sid)
}

// bindOpenCart fetches (or creates) the citizen's open cart and makes it the
// session's active cart.
func bindOpenCart(ctx context.Context, api *qmdapi.Client, sessions *session.Manager, sc session.Context) (string, error) {
	cart, err := api.FetchOrCreateCart(ctx, sc.CitizenID)
	if err != nil {
		return "", err
	}
	id := cart.ID.String()
	if id == "" {
		return "", errors.New("fetch-or-create returned no cart id")
	}
	if err := sessions.BindCart(ctx, sc.SessionID, id); err != nil {
		return "", err
	}
	applog.Info(nil, "cart.bind", map[string]any{"sid": sc.SessionID, "citizen_id": sc.CitizenID, "cart_id": id})
	return id, nil
}

// sync loads the session's cart into st when st shows something else.
func (s *CartService) sync(ctx context.Context, st *cartstore.Store, sc session.Context, force bool) error {
	status := st.Status()
	if !force && st.CartID() == sc.CartID && (status == cartstore.StatusReady || status == cartstore.StatusClosed) {
		return nil
	}
	err := st.Load(ctx, sc.CartID)
	if !errors.Is(err, cartstore.ErrCartSubmitted) {
		return err
	}
	if st.Snapshot().SubmittedID == sc.CartID {
		// stale id left in the session after a submit
		_ = s.Sessions.ClearCart(ctx, sc.SessionID)
		return err
	}
	// submitted earlier in this session and picked again
	return st.LoadReadOnly(ctx, sc.CartID)
}

// View resolves the page state. Remote failures become ViewError or ViewNoCart;
// only session storage failures are returned.
func (s *CartService) View(ctx context.Context, sc session.Context, refresh bool) (CartView, error) {
	if !sc.HasCitizen() {
		return CartView{State: ViewNoCitizen}, nil
	}
	st := s.Store(sc.SessionID)

	if !sc.HasCart() {
		if snap := st.Snapshot(); snap.Status == cartstore.StatusSubmitted {
			return CartView{State: ViewSubmitted, Cart: snap}, nil
		}
		id, err := bindOpenCart(ctx, s.API, s.Sessions, sc)
		if err != nil {
			applog.Warn(nil, "cart.fetch_or_create.fail", err, map[string]any{"citizen_id": sc.CitizenID})
			return CartView{State: ViewNoCart, Error: UserMessage(err)}, nil
		}
		sc.CartID = id
	}

	if err := s.sync(ctx, st, sc, refresh); errors.Is(err, cartstore.ErrCartSubmitted) {
		if snap := st.Snapshot(); snap.Status == cartstore.StatusSubmitted {
			return CartView{State: ViewSubmitted, Cart: snap}, nil
		}
		return CartView{State: ViewNoCart}, nil
	}

	snap := st.Snapshot()
	v := CartView{Cart: snap}
	switch snap.Status {
	case cartstore.StatusLoading:
		v.State = ViewLoading
	case cartstore.StatusError:
		v.State = ViewError
		v.Error = UserMessage(snap.Err)
	case cartstore.StatusSubmitted:
		v.State = ViewSubmitted
	case cartstore.StatusClosed:
		v.State = ViewPopulated
		v.ReadOnly = true
	case cartstore.StatusReady:
		v.State = ViewPopulated
	default:
		v.State = ViewNoCart
	}
	return v, nil
}

// bound returns the session's store synced to its active cart.
func (s *CartService) bound(ctx context.Context, sc session.Context) (*cartstore.Store, error) {
	if !sc.HasCitizen() {
		return nil, ErrNoCitizen
	}
	if !sc.HasCart() {
		return nil, cartstore.ErrNoCart
	}
	st := s.Store(sc.SessionID)
	if err := s.sync(ctx, st, sc, false); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *CartService) SetQuantity(ctx context.Context, sc session.Context, lineID string, q int) error {
	st, err := s.bound(ctx, sc)
	if err != nil {
		return err
	}
	return st.SetQuantity(ctx, lineID, q)
}

// Step moves a line's quantity by delta. Going below 1 is ignored; removal is
// a separate action.
func (s *CartService) Step(ctx context.Context, sc session.Context, lineID string, delta int) error {
	st, err := s.bound(ctx, sc)
	if err != nil {
		return err
	}
	for _, l := range st.Snapshot().Lines {
		if l.ID.String() != lineID {
			continue
		}
		q := l.Cantidad + delta
		if q < 1 {
			return nil
		}
		return st.SetQuantity(ctx, lineID, q)
	}
	return cartstore.ErrLineNotFound
}

func (s *CartService) Remove(ctx context.Context, sc session.Context, lineID string) error {
	st, err := s.bound(ctx, sc)
	if err != nil {
		return err
	}
	return st.RemoveLineItem(ctx, lineID)
}

// Submit closes the active cart and unbinds it from the session.
func (s *CartService) Submit(ctx context.Context, sc session.Context) error {
	st, err := s.bound(ctx, sc)
	if err != nil {
		return err
	}
	if err := st.Submit(ctx); err != nil {
		return err
	}
	if err := s.Sessions.ClearCart(ctx, sc.SessionID); err != nil {
		// the store already refuses the consumed id, so the view stays correct
		applog.Error(nil, "session.cart.clear.fail", err, map[string]any{"sid": sc.SessionID})
	}
	return nil
}

// StartNew leaves the submitted view and binds the citizen's open cart.
func (s *CartService) StartNew(ctx context.Context, sc session.Context) (string, error) {
	if !sc.HasCitizen() {
		return "", ErrNoCitizen
	}
	s.Store(sc.SessionID).Reset()
	id, err := bindOpenCart(ctx, s.API, s.Sessions, sc)
	if err != nil {
		s.Flash.Push(sc.SessionID, cartstore.KindError, UserMessage(err))
	}
	return id, err
}

// AddProduct adds to the active cart, creating and binding one if needed.
func (s *CartService) AddProduct(ctx context.Context, sc session.Context, productID string, q int) error {
	if !sc.HasCitizen() {
		return ErrNoCitizen
	}
	if !sc.HasCart() {
		id, err := bindOpenCart(ctx, s.API, s.Sessions, sc)
		if err != nil {
			s.Flash.Push(sc.SessionID, cartstore.KindError, UserMessage(err))
			return err
		}
		sc.CartID = id
	}
	st, err := s.bound(ctx, sc)
	if err != nil {
		return err
	}
	return st.AddProduct(ctx, productID, q)
}

// Snapshot is the JSON view of the session's cart.
func (s *CartService) Snapshot(ctx context.Context, sc session.Context) (cartstore.Snapshot, error) {
	st, err := s.bound(ctx, sc)
	if err != nil {
		return cartstore.Snapshot{}, err
	}
	return st.Snapshot(), nil
}
