package qmdapi

import (
	"context"
	"net/http"

	"qmd/internal/domain"
)

func (c *Client) ListCitizens(ctx context.Context) ([]domain.Citizen, error) {
	var out []domain.Citizen
	err := c.do(ctx, call{op: "ciudadanos.lista", method: http.MethodGet, path: "/ciudadanos", out: &out})
	return out, err
}

func (c *Client) GetCitizen(ctx context.Context, id string) (*domain.Citizen, error) {
	var out domain.Citizen
	if err := c.do(ctx, call{op: "ciudadanos.obtener", method: http.MethodGet,
		path: "/ciudadanos/" + seg(id), out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateCitizen(ctx context.Context, token string, in domain.Citizen) (*domain.Citizen, error) {
	var out domain.Citizen
	if err := c.do(ctx, call{op: "ciudadanos.crear", method: http.MethodPost, admin: true, token: token,
		path: "/ciudadanos", body: in, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCitizen(ctx context.Context, token, id string, in domain.Citizen) error {
	return c.do(ctx, call{op: "ciudadanos.actualizar", method: http.MethodPut, admin: true, token: token,
		path: "/ciudadanos/" + seg(id), body: in})
}

func (c *Client) DeleteCitizen(ctx context.Context, token, id string) error {
	return c.do(ctx, call{op: "ciudadanos.eliminar", method: http.MethodDelete, admin: true, token: token,
		path: "/ciudadanos/" + seg(id)})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResp struct {
	Token string `json:"token"`
}

// AdminLogin exchanges credentials for the admin token. An answer without a
// token is reported as ErrUnauthorized.
func (c *Client) AdminLogin(ctx context.Context, email, password string) (string, error) {
	var out loginResp
	if err := c.do(ctx, call{op: "admin.login", method: http.MethodPost,
		path: "/admin/login", body: loginReq{Email: email, Password: password}, out: &out}); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", ErrUnauthorized
	}
	return out.Token, nil
}

type notificationsEnvelope struct {
	Notificaciones []domain.Notification `json:"notificaciones"`
}

func (c *Client) ListNotifications(ctx context.Context, ciudadanoID string) ([]domain.Notification, error) {
	var env notificationsEnvelope
	err := c.do(ctx, call{op: "notificaciones.lista", method: http.MethodGet,
		path: "/notificaciones/" + seg(ciudadanoID), out: &env})
	return env.Notificaciones, err
}
