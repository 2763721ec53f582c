package services

import (
	"errors"

	"qmd/internal/cartstore"
	"qmd/internal/qmdapi"
)

// UserMessage turns an error into the Spanish text shown inline on a page.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if sc, ok := qmdapi.IsStockConflict(err); ok {
		return sc.Error()
	}
	var apiErr *qmdapi.APIError
	switch {
	case qmdapi.IsTransport(err):
		return "No se pudo conectar con el servidor"
	case errors.Is(err, qmdapi.ErrUnauthorized):
		return "Sesión de administrador inválida o expirada"
	case errors.Is(err, ErrNoCitizen):
		return "Por favor, selecciona un ciudadano"
	case errors.Is(err, cartstore.ErrNoCart):
		return "No hay un carro activo"
	case errors.Is(err, cartstore.ErrCartSubmitted):
		return "El carro ya fue tramitado"
	case errors.Is(err, cartstore.ErrInvalidQuantity):
		return "La cantidad debe ser al menos 1"
	case errors.Is(err, cartstore.ErrLineNotFound):
		return "El producto ya no está en el carro"
	case errors.Is(err, cartstore.ErrSubmitInProgress):
		return "El carro se está tramitando"
	case errors.Is(err, ErrProductNotFound):
		return "Producto no encontrado"
	case errors.Is(err, ErrCartNotOwned):
		return "El carro no pertenece al ciudadano"
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	}
	return "Ocurrió un error inesperado"
}
