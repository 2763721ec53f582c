package qmdapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is returned for admin calls made without a token and for
// 401/403 answers. Callers must not retry it.
var ErrUnauthorized = errors.New("qmdapi: unauthorized")

// TransportError wraps network-level failures (dial, timeout, broken body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("qmdapi %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx answer without a structured stock-conflict body.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("qmdapi %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("qmdapi %s: status %d: %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// StockConflictError carries the insufficient-stock payload of the cart endpoints.
type StockConflictError struct {
	Status          int    `json:"-"`
	OK              bool   `json:"ok"`
	Message         string `json:"error"`
	Producto        string `json:"producto"`
	StockDisponible int    `json:"stockDisponible"`
	Solicitado      int    `json:"solicitado"`
	DetalleID       string `json:"-"`
	ProductoID      string `json:"-"`
}

func (e *StockConflictError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Stock insuficiente"
	}
	if e.Producto == "" {
		return fmt.Sprintf("%s: disponible %d, solicitado %d", msg, e.StockDisponible, e.Solicitado)
	}
	return fmt.Sprintf("%s para %s: disponible %d, solicitado %d", msg, e.Producto, e.StockDisponible, e.Solicitado)
}

// IsStockConflict unwraps err into a *StockConflictError.
func IsStockConflict(err error) (*StockConflictError, bool) {
	var sc *StockConflictError
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}

// IsTransport reports whether err came from the network rather than the API.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
