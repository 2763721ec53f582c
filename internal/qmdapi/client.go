// Package qmdapi is a typed client for the QMD REST API, the authoritative
// store for citizens, products, carts, stock and notifications.
package qmdapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qmd/internal/domain"
)

const maxBody = 4 << 20

type Client struct {
	BaseURL     string
	AdminHeader string
	HTTPClient  *http.Client
}

type Option func(*Client)

// WithTimeout sets the HTTP timeout. No other deadline or retry is applied.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithAdminHeader sets the header that carries the admin token.
func WithAdminHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.AdminHeader = name
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.HTTPClient = h
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AdminHeader: "X-Admin-Token",
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type call struct {
	op     string
	method string
	path   string
	admin  bool
	token  string
	body   any
	out    any
}

func (c *Client) do(ctx context.Context, k call) error {
	if k.admin && strings.TrimSpace(k.token) == "" {
		return fmt.Errorf("%s: %w", k.op, ErrUnauthorized)
	}

	var reader io.Reader
	if k.body != nil {
		b, err := json.Marshal(k.body)
		if err != nil {
			return fmt.Errorf("qmdapi %s: encode: %w", k.op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, k.method, c.BaseURL+k.path, reader)
	if err != nil {
		return fmt.Errorf("qmdapi %s: %w", k.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if k.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if k.admin {
		req.Header.Set(c.AdminHeader, k.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Op: k.op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &TransportError{Op: k.op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(k.op, resp.StatusCode, raw)
	}
	if k.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, k.out); err != nil {
		return fmt.Errorf("qmdapi %s: decode: %w", k.op, err)
	}
	return nil
}

type failureBody struct {
	OK              *bool     `json:"ok"`
	Error           string    `json:"error"`
	Message         string    `json:"message"`
	Producto        string    `json:"producto"`
	StockDisponible *int      `json:"stockDisponible"`
	Solicitado      int       `json:"solicitado"`
	DetalleID       domain.ID `json:"detalleId"`
	ProductoID      domain.ID `json:"productoId"`
}

func decodeFailure(op string, status int, raw []byte) error {
	var fb failureBody
	if len(raw) > 0 && json.Unmarshal(raw, &fb) == nil {
		if status >= 400 && status < 500 && fb.StockDisponible != nil {
			return &StockConflictError{
				Status:          status,
				Message:         fb.Error,
				Producto:        fb.Producto,
				StockDisponible: *fb.StockDisponible,
				Solicitado:      fb.Solicitado,
				DetalleID:       fb.DetalleID.String(),
				ProductoID:      fb.ProductoID.String(),
			}
		}
		msg := fb.Error
		if msg == "" {
			msg = fb.Message
		}
		return &APIError{Op: op, Status: status, Message: msg}
	}
	return &APIError{Op: op, Status: status}
}

func seg(s string) string { return url.PathEscape(s) }
