package shopify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShopDomain = "green-acres.myshopify.com"

func TestEndpoints(t *testing.T) {
	t.Run("derives shop id from domain", func(t *testing.T) {
		for _, domainValue := range []string{
			"green-acres.myshopify.com",
			"https://green-acres.myshopify.com/",
			"  green-acres  ",
		} {
			id, err := Endpoints{ShopDomain: domainValue}.ShopID()
			require.NoError(t, err)
			assert.Equal(t, "green-acres", id, domainValue)
		}
	})

	t.Run("builds URLs under the identity host", func(t *testing.T) {
		e := Endpoints{IdentityHost: "https://shopify.com/", ShopDomain: testShopDomain, APIVersion: "2024-10"}

		authorize, err := e.AuthorizeURL()
		require.NoError(t, err)
		assert.Equal(t, "https://shopify.com/green-acres/auth/oauth/authorize", authorize)

		token, err := e.TokenURL()
		require.NoError(t, err)
		assert.Equal(t, "https://shopify.com/green-acres/auth/oauth/token", token)

		logout, err := e.LogoutURL()
		require.NoError(t, err)
		assert.Equal(t, "https://shopify.com/green-acres/auth/logout", logout)

		graphql, err := e.GraphQLURL()
		require.NoError(t, err)
		assert.Equal(t, "https://shopify.com/green-acres/account/customer/api/2024-10/graphql", graphql)
	})

	t.Run("missing domain is a configuration error", func(t *testing.T) {
		_, err := Endpoints{IdentityHost: "https://shopify.com"}.AuthorizeURL()
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("missing API version is a configuration error", func(t *testing.T) {
		_, err := Endpoints{IdentityHost: "https://shopify.com", ShopDomain: testShopDomain}.GraphQLURL()
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestCustomerOAuth_AuthorizationURL(t *testing.T) {
	auth := NewCustomerOAuth("client-123", Endpoints{IdentityHost: "https://shopify.com", ShopDomain: testShopDomain}, nil, zerolog.Nop())

	raw, err := auth.AuthorizationURL(ports.AuthorizationRequest{
		RedirectURI:   "https://farm.example.com/account/callback",
		State:         "state-1",
		Nonce:         "nonce-1",
		CodeChallenge: "challenge-1",
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "shopify.com", u.Host)
	assert.Equal(t, "/green-acres/auth/oauth/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://farm.example.com/account/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email customer-account-api:full", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "nonce-1", q.Get("nonce"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Len(t, q, 8)
}

func TestCustomerOAuth_MissingConfiguration(t *testing.T) {
	t.Run("client id", func(t *testing.T) {
		auth := NewCustomerOAuth("", Endpoints{IdentityHost: "https://shopify.com", ShopDomain: testShopDomain}, nil, zerolog.Nop())

		_, err := auth.AuthorizationURL(ports.AuthorizationRequest{State: "s"})
		require.ErrorIs(t, err, domain.ErrConfiguration)

		_, err = auth.Refresh(context.Background(), "rt")
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("shop domain", func(t *testing.T) {
		auth := NewCustomerOAuth("client-123", Endpoints{IdentityHost: "https://shopify.com"}, nil, zerolog.Nop())

		_, err := auth.ExchangeCode(context.Background(), "code", "verifier", "https://farm.example.com/account/callback")
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func newTokenServer(t *testing.T, handler func(t *testing.T, form url.Values) (int, string)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/green-acres/auth/oauth/token", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded"))
		assert.NoError(t, r.ParseForm())

		status, body := handler(t, r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestCustomerOAuth_ExchangeCode(t *testing.T) {
	t.Run("posts the authorization code grant", func(t *testing.T) {
		server, calls := newTokenServer(t, func(t *testing.T, form url.Values) (int, string) {
			assert.Equal(t, "authorization_code", form.Get("grant_type"))
			assert.Equal(t, "client-123", form.Get("client_id"))
			assert.Equal(t, "https://farm.example.com/account/callback", form.Get("redirect_uri"))
			assert.Equal(t, "the-code", form.Get("code"))
			assert.Equal(t, "the-verifier", form.Get("code_verifier"))
			assert.Empty(t, form.Get("client_secret"))
			return http.StatusOK, `{"access_token":"at-1","refresh_token":"rt-1","id_token":"idt-1","expires_in":3600,"token_type":"Bearer"}`
		})

		auth := NewCustomerOAuth("client-123", Endpoints{IdentityHost: server.URL, ShopDomain: testShopDomain}, server.Client(), zerolog.Nop())
		tokens, err := auth.ExchangeCode(context.Background(), "the-code", "the-verifier", "https://farm.example.com/account/callback")
		require.NoError(t, err)

		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		assert.Equal(t, "at-1", tokens.AccessToken)
		assert.Equal(t, "rt-1", tokens.RefreshToken)
		assert.Equal(t, "idt-1", tokens.IDToken)
		assert.InDelta(t, 3600, tokens.ExpiresIn, 1)
	})

	t.Run("non-2xx keeps status and body", func(t *testing.T) {
		server, _ := newTokenServer(t, func(t *testing.T, form url.Values) (int, string) {
			return http.StatusBadRequest, `{"error":"invalid_grant"}`
		})

		auth := NewCustomerOAuth("client-123", Endpoints{IdentityHost: server.URL, ShopDomain: testShopDomain}, server.Client(), zerolog.Nop())
		_, err := auth.ExchangeCode(context.Background(), "bad-code", "v", "https://farm.example.com/account/callback")

		var transportErr *domain.TransportError
		require.True(t, errors.As(err, &transportErr))
		assert.Equal(t, http.StatusBadRequest, transportErr.StatusCode)
		assert.Contains(t, transportErr.Body, "invalid_grant")
		assert.Contains(t, err.Error(), "status 400")
	})
}

func TestCustomerOAuth_Refresh(t *testing.T) {
	t.Run("posts the refresh grant", func(t *testing.T) {
		server, calls := newTokenServer(t, func(t *testing.T, form url.Values) (int, string) {
			assert.Equal(t, "refresh_token", form.Get("grant_type"))
			assert.Equal(t, "client-123", form.Get("client_id"))
			assert.Equal(t, "rt-old", form.Get("refresh_token"))
			return http.StatusOK, `{"access_token":"at-2","refresh_token":"rt-2","id_token":"idt-2","expires_in":7200}`
		})

		auth := NewCustomerOAuth("client-123", Endpoints{IdentityHost: server.URL, ShopDomain: testShopDomain}, server.Client(), zerolog.Nop())
		tokens, err := auth.Refresh(context.Background(), "rt-old")
		require.NoError(t, err)

		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		assert.Equal(t, "at-2", tokens.AccessToken)
		assert.Equal(t, "rt-2", tokens.RefreshToken)
		assert.Equal(t, "idt-2", tokens.IDToken)
		assert.InDelta(t, 7200, tokens.ExpiresIn, 1)
	})

	t.Run("keeps the previous refresh token when none is returned", func(t *testing.T) {
		server, _ := newTokenServer(t, func(t *testing.T, form url.Values) (int, string) {
			return http.StatusOK, `{"access_token":"at-3","expires_in":60}`
		})

		auth := NewCustomerOAuth("client-123", Endpoints{IdentityHost: server.URL, ShopDomain: testShopDomain}, server.Client(), zerolog.Nop())
		tokens, err := auth.Refresh(context.Background(), "rt-old")
		require.NoError(t, err)
		assert.Equal(t, "rt-old", tokens.RefreshToken)
	})

	t.Run("rejected refresh is a transport error", func(t *testing.T) {
		server, _ := newTokenServer(t, func(t *testing.T, form url.Values) (int, string) {
			return http.StatusUnauthorized, `{"error":"invalid_token"}`
		})

		auth := NewCustomerOAuth("client-123", Endpoints{IdentityHost: server.URL, ShopDomain: testShopDomain}, server.Client(), zerolog.Nop())
		_, err := auth.Refresh(context.Background(), "rt-revoked")

		var transportErr *domain.TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, http.StatusUnauthorized, transportErr.StatusCode)
	})
}

func TestCustomerOAuth_LogoutURL(t *testing.T) {
	auth := NewCustomerOAuth("client-123", Endpoints{IdentityHost: "https://shopify.com", ShopDomain: testShopDomain}, nil, zerolog.Nop())

	raw, err := auth.LogoutURL("idt-1", "https://farm.example.com")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/green-acres/auth/logout", u.Path)
	assert.Equal(t, "idt-1", u.Query().Get("id_token_hint"))
	assert.Equal(t, "https://farm.example.com", u.Query().Get("post_logout_redirect_uri"))
}
