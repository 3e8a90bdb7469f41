package ports

import (
	"context"
	"time"

	"storefront-customer-layer/internal/domain"
)

// AuthorizationRequest carries the per-flow values of the authorize redirect
type AuthorizationRequest struct {
	RedirectURI   string
	State         string
	Nonce         string
	CodeChallenge string
}

// AuthorizationServer is the customer account identity provider
type AuthorizationServer interface {
	// AuthorizationURL builds the authorize endpoint redirect target
	AuthorizationURL(req AuthorizationRequest) (string, error)

	// ExchangeCode performs the authorization_code grant
	ExchangeCode(ctx context.Context, code string, codeVerifier string, redirectURI string) (*domain.OAuthTokens, error)

	// Refresh performs the refresh_token grant
	Refresh(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error)

	// LogoutURL builds the end-session redirect target
	LogoutURL(idToken string, postLogoutRedirectURI string) (string, error)
}

// CustomerAccountAPI defines the customer account resource operations.
// Mutations return the payload's userErrors; transport and GraphQL failures are errors.
type CustomerAccountAPI interface {
	GetCustomer(ctx context.Context, accessToken string) (*domain.ShopifyCustomer, error)
	UpdateCustomer(ctx context.Context, accessToken string, input domain.ProfileInput) ([]domain.UserErrorDetail, error)
	CreateAddress(ctx context.Context, accessToken string, input domain.AddressInput, makeDefault bool) ([]domain.UserErrorDetail, error)
	UpdateAddress(ctx context.Context, accessToken string, addressID string, input *domain.AddressInput, makeDefault bool) ([]domain.UserErrorDetail, error)
	DeleteAddress(ctx context.Context, accessToken string, addressID string) ([]domain.UserErrorDetail, error)
}

// SessionEventPublisher broadcasts session state changes
type SessionEventPublisher interface {
	Publish(event *domain.SessionEvent)
}

// SessionMetrics records session lifecycle outcomes
type SessionMetrics interface {
	ObserveLogin(result string)
	ObserveRefresh(mode string, result string)
}

// APIMetrics records customer account API round trips
type APIMetrics interface {
	ObserveRequest(operation string, outcome string, duration time.Duration)
}
