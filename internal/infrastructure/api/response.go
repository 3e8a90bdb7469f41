package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront-customer-layer/internal/domain"
)

// CustomerView is the account state returned to the storefront
type CustomerView struct {
	IsAuthenticated bool                    `json:"isAuthenticated"`
	Customer        *domain.ShopifyCustomer `json:"customer"`
	Error           string                  `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a session operation error to an HTTP status
func statusFor(err error) int {
	var userErr *domain.UserError
	switch {
	case errors.As(err, &userErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
