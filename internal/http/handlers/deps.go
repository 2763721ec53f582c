package handlers

import (
	"qmd/internal/config"
	"qmd/internal/qmdapi"
	"qmd/internal/services"
	"qmd/internal/session"
)

type Deps struct {
	Sessions *session.Manager
	Flash    *services.FlashQueue
	Auth     *services.AuthService
	Cart     *services.CartService
	Notifs   *services.NotificationService

	AuthHandler         *AuthHandler
	ProductHandler      *ProductHandler
	SearchHandler       *SearchHandler
	CartHandler         *CartHandler
	SelectorHandler     *SelectorHandler
	NotificationHandler *NotificationHandler
	AdminHandler        *AdminHandler
}

func NewDeps(cfg config.Config, kv session.KV) *Deps {
	api := qmdapi.New(cfg.APIBaseURL,
		qmdapi.WithTimeout(cfg.APITimeout),
		qmdapi.WithAdminHeader(cfg.AdminTokenHeader),
	)
	return NewDepsWithClient(api, kv)
}

// NewDepsWithClient wires every handler around an existing API client.
func NewDepsWithClient(api *qmdapi.Client, kv session.KV) *Deps {
	sessions := session.NewManager(kv)
	flash := services.NewFlashQueue()

	authSvc := services.NewAuthService(api, sessions)
	catalogSvc := services.NewCatalogService(api)
	cartSvc := services.NewCartService(api, sessions, flash)
	selectorSvc := services.NewSelectorService(api, sessions)
	notifSvc := services.NewNotificationService(api, sessions)
	adminSvc := services.NewAdminService(api, sessions)

	return &Deps{
		Sessions: sessions,
		Flash:    flash,
		Auth:     authSvc,
		Cart:     cartSvc,
		Notifs:   notifSvc,

		AuthHandler:         &AuthHandler{Auth: authSvc, Cart: cartSvc, Flash: flash},
		ProductHandler:      &ProductHandler{Catalog: catalogSvc, Cart: cartSvc, Flash: flash},
		SearchHandler:       &SearchHandler{Catalog: catalogSvc},
		CartHandler:         &CartHandler{Cart: cartSvc, Flash: flash},
		SelectorHandler:     &SelectorHandler{Selector: selectorSvc, Flash: flash},
		NotificationHandler: &NotificationHandler{Notifs: notifSvc, Flash: flash},
		AdminHandler:        &AdminHandler{Admin: adminSvc, Flash: flash},
	}
}
