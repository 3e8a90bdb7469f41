package domain

import "time"

// OAuthTokens is the token endpoint response for an authorization code or refresh grant.
// It is never persisted as is; see NewStoredTokens.
type OAuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// StoredTokens is the persisted credential record for a logged-in customer
type StoredTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresAt    int64  `json:"expires_at"` // epoch milliseconds
}

// NewStoredTokens converts a token endpoint response into its persisted shape.
// ExpiresAt is anchored at receipt time using the server-communicated lifetime.
func NewStoredTokens(tokens *OAuthTokens, receivedAt time.Time) *StoredTokens {
	return &StoredTokens{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		ExpiresAt:    receivedAt.UnixMilli() + tokens.ExpiresIn*1000,
	}
}

// ExpiresAtTime returns ExpiresAt as a time.Time
func (t *StoredTokens) ExpiresAtTime() time.Time {
	return time.UnixMilli(t.ExpiresAt)
}

// Remaining returns how long the access token stays valid after now.
// A zero or negative value means the token is already expired.
func (t *StoredTokens) Remaining(now time.Time) time.Duration {
	return time.Duration(t.ExpiresAt-now.UnixMilli()) * time.Millisecond
}

// PKCEParams holds the values of one in-flight authorization request
type PKCEParams struct {
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state"`
	Nonce        string `json:"nonce"`
	RedirectURI  string `json:"redirectUri"`
}
