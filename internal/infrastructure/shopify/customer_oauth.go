package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/pkce"
	"storefront-customer-layer/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// CustomerAccountScope grants OpenID, email and full customer account API access
const CustomerAccountScope = "openid email customer-account-api:full"

// CustomerOAuth talks to the customer account identity provider as a public
// client: the client id travels in the request body and there is no secret.
type CustomerOAuth struct {
	clientID   string
	endpoints  Endpoints
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ ports.AuthorizationServer = (*CustomerOAuth)(nil)

// NewCustomerOAuth creates the identity provider adapter.
// A nil httpClient means http.DefaultClient.
func NewCustomerOAuth(clientID string, endpoints Endpoints, httpClient *http.Client, logger zerolog.Logger) *CustomerOAuth {
	return &CustomerOAuth{
		clientID:   clientID,
		endpoints:  endpoints,
		httpClient: httpClient,
		logger:     logger,
	}
}

// oauthConfig builds the per-call client configuration. Configuration problems
// surface here, on first use, rather than at startup.
func (c *CustomerOAuth) oauthConfig(redirectURI string) (*oauth2.Config, error) {
	if strings.TrimSpace(c.clientID) == "" {
		return nil, fmt.Errorf("%w: customer account client id is not set", domain.ErrConfiguration)
	}
	authURL, err := c.endpoints.AuthorizeURL()
	if err != nil {
		return nil, err
	}
	tokenURL, err := c.endpoints.TokenURL()
	if err != nil {
		return nil, err
	}

	return &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(CustomerAccountScope),
	}, nil
}

func (c *CustomerOAuth) withHTTPClient(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthorizationURL builds the authorize redirect with the S256 challenge
func (c *CustomerOAuth) AuthorizationURL(req ports.AuthorizationRequest) (string, error) {
	cfg, err := c.oauthConfig(req.RedirectURI)
	if err != nil {
		return "", err
	}

	authURL := cfg.AuthCodeURL(req.State,
		oauth2.SetAuthURLParam("nonce", req.Nonce),
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
	)

	c.logger.Debug().
		Str("redirect_uri", req.RedirectURI).
		Str("scope", CustomerAccountScope).
		Msg("Generated customer account authorization URL")

	return authURL, nil
}

// ExchangeCode trades the authorization code and verifier for tokens
func (c *CustomerOAuth) ExchangeCode(ctx context.Context, code string, codeVerifier string, redirectURI string) (*domain.OAuthTokens, error) {
	cfg, err := c.oauthConfig(redirectURI)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, c.tokenError("token exchange", err)
	}

	c.logger.Info().Msg("Exchanged authorization code for customer tokens")
	return tokensFromOAuth2(token, ""), nil
}

// Refresh obtains a new access token with the refresh_token grant
func (c *CustomerOAuth) Refresh(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	cfg, err := c.oauthConfig("")
	if err != nil {
		return nil, err
	}

	// A token without an access token is never valid, so the source refreshes immediately.
	source := cfg.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, c.tokenError("token refresh", err)
	}

	c.logger.Debug().Msg("Refreshed customer access token")
	return tokensFromOAuth2(token, refreshToken), nil
}

// LogoutURL builds the end-session redirect
func (c *CustomerOAuth) LogoutURL(idToken string, postLogoutRedirectURI string) (string, error) {
	endpoint, err := c.endpoints.LogoutURL()
	if err != nil {
		return "", err
	}

	values := url.Values{}
	values.Set("id_token_hint", idToken)
	values.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	return endpoint + "?" + values.Encode(), nil
}

// tokenError keeps status and body of a rejected token request for diagnostics
func (c *CustomerOAuth) tokenError(operation string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		c.logger.Warn().
			Str("operation", operation).
			Int("status", retrieveErr.Response.StatusCode).
			Str("body", string(retrieveErr.Body)).
			Msg("Token endpoint rejected request")
		return &domain.TransportError{
			Operation:  operation,
			StatusCode: retrieveErr.Response.StatusCode,
			Body:       string(retrieveErr.Body),
		}
	}

	c.logger.Warn().Err(err).Str("operation", operation).Msg("Token endpoint request failed")
	return fmt.Errorf("%s failed: %w", operation, err)
}

func tokensFromOAuth2(token *oauth2.Token, previousRefreshToken string) *domain.OAuthTokens {
	idToken, _ := token.Extra("id_token").(string)

	expiresIn := token.ExpiresIn
	if expiresIn == 0 && !token.Expiry.IsZero() {
		expiresIn = int64(time.Until(token.Expiry).Round(time.Second) / time.Second)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}

	return &domain.OAuthTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		IDToken:      idToken,
		ExpiresIn:    expiresIn,
	}
}
