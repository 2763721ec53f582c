package services

import (
	"context"
	"errors"

	"qmd/internal/domain"
	applog "qmd/internal/log"
	"qmd/internal/qmdapi"
	"qmd/internal/session"
)

var ErrCartNotOwned = errors.New("cart does not belong to citizen")

// SelectorService backs the cart drawer: the citizen's carts and which one is active.
type SelectorService struct {
	API      *qmdapi.Client
	Sessions *session.Manager
}

func NewSelectorService(api *qmdapi.Client, sessions *session.Manager) *SelectorService {
	return &SelectorService{API: api, Sessions: sessions}
}

type SelectorView struct {
	Carts    []domain.CartSummary
	ActiveID string
}

// List is fetched on every render; nothing is cached.
func (s *SelectorService) List(ctx context.Context, sc session.Context) (SelectorView, error) {
	if !sc.HasCitizen() {
		return SelectorView{}, ErrNoCitizen
	}
	carts, err := s.API.ListCarts(ctx, sc.CitizenID)
	if err != nil {
		return SelectorView{ActiveID: sc.CartID}, err
	}
	return SelectorView{Carts: carts, ActiveID: sc.CartID}, nil
}

// Select makes one of the citizen's carts the active one.
func (s *SelectorService) Select(ctx context.Context, sc session.Context, cartID string) error {
	view, err := s.List(ctx, sc)
	if err != nil {
		return err
	}
	for _, c := range view.Carts {
		if c.ID.String() == cartID {
			applog.Info(nil, "cart.select", map[string]any{"sid": sc.SessionID, "cart_id": cartID})
			return s.Sessions.BindCart(ctx, sc.SessionID, cartID)
		}
	}
	return ErrCartNotOwned
}

// Create binds the citizen's open cart, creating it when there is none.
func (s *SelectorService) Create(ctx context.Context, sc session.Context) (string, error) {
	if !sc.HasCitizen() {
		return "", ErrNoCitizen
	}
	return bindOpenCart(ctx, s.API, s.Sessions, sc)
}

func (s *SelectorService) Deselect(ctx context.Context, sc session.Context) error {
	return s.Sessions.ClearCart(ctx, sc.SessionID)
}
