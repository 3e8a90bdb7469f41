package application

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/pkce"
	"storefront-customer-layer/internal/ports"

	"github.com/rs/zerolog"
)

// Storage slot names
const (
	TokenStorageKey = "shopify_customer_tokens"
	PKCEStorageKey  = "shopify_pkce_params"
)

// CallbackPath is appended to the request origin to form the redirect URI
const CallbackPath = "/account/callback"

// DefaultRefreshWindow is how close to expiry a token gets refreshed in the background
const DefaultRefreshWindow = 5 * time.Minute

// Refresh modes, used as log fields and metric labels
const (
	RefreshBlocking   = "blocking"
	RefreshBackground = "background"
	RefreshStartup    = "startup"
	RefreshRetry      = "retry"
)

var errSessionReplaced = errors.New("session was logged out during refresh")

// SessionOptions configures a SessionManager. Zero values pick defaults.
type SessionOptions struct {
	SessionID     string
	Clock         func() time.Time
	Publisher     ports.SessionEventPublisher
	Metrics       ports.SessionMetrics
	RefreshWindow time.Duration
}

// SessionManager owns one visitor's customer session: the PKCE handshake,
// the persisted tokens and their refresh, and the customer record.
type SessionManager struct {
	auth          ports.AuthorizationServer
	customers     ports.CustomerAccountAPI
	tokens        ports.KeyValueStore
	flow          ports.KeyValueStore
	logger        zerolog.Logger
	sessionID     string
	now           func() time.Time
	publisher     ports.SessionEventPublisher
	metrics       ports.SessionMetrics
	refreshWindow time.Duration

	mu       sync.RWMutex
	state    domain.SessionState
	customer *domain.ShopifyCustomer
	lastErr  string

	// slotMu serializes token slot writes against logout; generation is
	// bumped every time the slot is cleared.
	slotMu     sync.Mutex
	generation uint64

	refreshing atomic.Bool
	background sync.WaitGroup
}

// NewSessionManager creates a manager with default options
func NewSessionManager(
	auth ports.AuthorizationServer,
	customers ports.CustomerAccountAPI,
	tokenStore ports.KeyValueStore,
	flowStore ports.KeyValueStore,
	logger zerolog.Logger,
) *SessionManager {
	return NewSessionManagerWithOptions(auth, customers, tokenStore, flowStore, logger, SessionOptions{})
}

// NewSessionManagerWithOptions creates a manager with explicit options
func NewSessionManagerWithOptions(
	auth ports.AuthorizationServer,
	customers ports.CustomerAccountAPI,
	tokenStore ports.KeyValueStore,
	flowStore ports.KeyValueStore,
	logger zerolog.Logger,
	opts SessionOptions,
) *SessionManager {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = DefaultRefreshWindow
	}
	if opts.SessionID != "" {
		logger = logger.With().Str("session_id", opts.SessionID).Logger()
	}

	return &SessionManager{
		auth:          auth,
		customers:     customers,
		tokens:        tokenStore,
		flow:          flowStore,
		logger:        logger,
		sessionID:     opts.SessionID,
		now:           opts.Clock,
		publisher:     opts.Publisher,
		metrics:       opts.Metrics,
		refreshWindow: opts.RefreshWindow,
		state:         domain.StateUnauthenticated,
	}
}

// SessionID returns the visitor session this manager belongs to
func (m *SessionManager) SessionID() string {
	return m.sessionID
}

// State returns the current lifecycle state
func (m *SessionManager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsAuthenticated reports whether a customer is logged in
func (m *SessionManager) IsAuthenticated() bool {
	return m.State() == domain.StateAuthenticated
}

// Customer returns the last fetched customer record, or nil.
// The record is replaced, never modified, so callers may keep the pointer.
func (m *SessionManager) Customer() *domain.ShopifyCustomer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.customer
}

// Error returns the user-facing message of the last failed operation
func (m *SessionManager) Error() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// ClearError empties the error slot
func (m *SessionManager) ClearError() {
	m.update(func() { m.lastErr = "" })
}

// Wait blocks until any background refresh has finished
func (m *SessionManager) Wait() {
	m.background.Wait()
}

// update applies fn under the state lock and publishes the resulting snapshot
func (m *SessionManager) update(fn func()) {
	m.mu.Lock()
	fn()
	event := &domain.SessionEvent{
		SessionID:     m.sessionID,
		State:         m.state,
		Authenticated: m.state == domain.StateAuthenticated,
		Error:         m.lastErr,
		OccurredAt:    m.now(),
	}
	m.mu.Unlock()

	if m.publisher != nil {
		m.publisher.Publish(event)
	}
}

// fail records err in the error slot and returns it unchanged
func (m *SessionManager) fail(err error) error {
	message := domain.UserMessage(err)
	m.update(func() { m.lastErr = message })
	return err
}

func (m *SessionManager) setCustomer(customer *domain.ShopifyCustomer) {
	m.update(func() {
		m.customer = customer
		m.state = domain.StateAuthenticated
		m.lastErr = ""
	})
}

func (m *SessionManager) observeRefresh(mode string, err error) {
	if m.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.metrics.ObserveRefresh(mode, result)
}

func (m *SessionManager) observeLogin(err error) {
	if m.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.metrics.ObserveLogin(result)
}

// Token slot

func (m *SessionManager) loadTokens(ctx context.Context) (*domain.StoredTokens, error) {
	raw, found, err := m.tokens.Get(ctx, TokenStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored tokens: %w", err)
	}
	if !found {
		return nil, nil
	}

	var tokens domain.StoredTokens
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil || tokens.AccessToken == "" {
		m.logger.Warn().Msg("Discarding unreadable stored tokens")
		_ = m.tokens.Remove(ctx, TokenStorageKey)
		return nil, nil
	}
	return &tokens, nil
}

func (m *SessionManager) currentGeneration() uint64 {
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	return m.generation
}

// saveTokens writes the token slot. When generation is non-nil the write is
// skipped if the slot was cleared after that generation was read.
func (m *SessionManager) saveTokens(ctx context.Context, tokens *domain.StoredTokens, generation *uint64) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	m.slotMu.Lock()
	defer m.slotMu.Unlock()

	if generation != nil && *generation != m.generation {
		return errSessionReplaced
	}
	if err := m.tokens.Set(ctx, TokenStorageKey, string(raw)); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// clearSession removes the tokens and the customer and returns to unauthenticated
func (m *SessionManager) clearSession(ctx context.Context) error {
	m.slotMu.Lock()
	m.generation++
	err := m.tokens.Remove(ctx, TokenStorageKey)
	m.slotMu.Unlock()

	m.update(func() {
		m.customer = nil
		m.state = domain.StateUnauthenticated
	})

	if err != nil {
		return fmt.Errorf("failed to clear stored tokens: %w", err)
	}
	return nil
}

// Refresh

func (m *SessionManager) refresh(ctx context.Context, current *domain.StoredTokens, mode string) (*domain.StoredTokens, error) {
	generation := m.currentGeneration()

	if current.RefreshToken == "" {
		err := errors.New("no refresh token stored")
		m.observeRefresh(mode, err)
		return nil, err
	}

	fresh, err := m.auth.Refresh(ctx, current.RefreshToken)
	if err != nil {
		m.observeRefresh(mode, err)
		return nil, err
	}

	stored := domain.NewStoredTokens(fresh, m.now())
	if stored.RefreshToken == "" {
		stored.RefreshToken = current.RefreshToken
	}
	if stored.IDToken == "" {
		stored.IDToken = current.IDToken
	}

	if err := m.saveTokens(ctx, stored, &generation); err != nil {
		m.observeRefresh(mode, err)
		return nil, err
	}

	m.observeRefresh(mode, nil)
	m.logger.Debug().
		Str("mode", mode).
		Time("expires_at", stored.ExpiresAtTime()).
		Msg("Refreshed customer access token")
	return stored, nil
}

// refreshInBackground starts a detached refresh unless one is already running.
// Its outcome only reaches the token slot; failures are logged.
func (m *SessionManager) refreshInBackground(ctx context.Context, current *domain.StoredTokens) {
	if !m.refreshing.CompareAndSwap(false, true) {
		return
	}

	detached := context.WithoutCancel(ctx)
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer m.refreshing.Store(false)

		if _, err := m.refresh(detached, current, RefreshBackground); err != nil {
			m.logger.Warn().Err(err).Msg("Background token refresh failed")
		}
	}()
}

// forceLogout clears the session after an unrecoverable refresh failure
func (m *SessionManager) forceLogout(ctx context.Context, cause error) error {
	m.logger.Warn().Err(cause).Msg("Token refresh failed, logging customer out")
	if err := m.clearSession(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear session after refresh failure")
	}
	return fmt.Errorf("%w: %v", domain.ErrSessionExpired, cause)
}

// accessToken implements the validity gate without touching the error slot
func (m *SessionManager) accessToken(ctx context.Context) (string, error) {
	tokens, err := m.loadTokens(ctx)
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return "", domain.ErrNotAuthenticated
	}

	remaining := tokens.Remaining(m.now())
	if remaining <= 0 {
		refreshed, err := m.refresh(ctx, tokens, RefreshBlocking)
		if err != nil {
			return "", m.forceLogout(ctx, err)
		}
		return refreshed.AccessToken, nil
	}

	if remaining < m.refreshWindow {
		m.refreshInBackground(ctx, tokens)
	}
	return tokens.AccessToken, nil
}

// ValidAccessToken returns a usable access token. An expired token is
// refreshed before returning; one close to expiry is returned immediately
// while a refresh runs in the background.
func (m *SessionManager) ValidAccessToken(ctx context.Context) (string, error) {
	token, err := m.accessToken(ctx)
	if err != nil {
		return "", m.fail(err)
	}
	return token, nil
}

// withAccessToken runs call with a valid token, refreshing and retrying once
// if the resource server rejects it.
func (m *SessionManager) withAccessToken(ctx context.Context, call func(token string) error) error {
	token, err := m.accessToken(ctx)
	if err != nil {
		return err
	}

	err = call(token)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}

	m.logger.Info().Msg("Access token rejected, refreshing and retrying")
	current, loadErr := m.loadTokens(ctx)
	if loadErr != nil {
		return loadErr
	}
	if current == nil {
		return domain.ErrNotAuthenticated
	}
	refreshed, refreshErr := m.refresh(ctx, current, RefreshRetry)
	if refreshErr != nil {
		return m.forceLogout(ctx, refreshErr)
	}

	err = call(refreshed.AccessToken)
	if errors.Is(err, domain.ErrUnauthorized) {
		return m.forceLogout(ctx, err)
	}
	return err
}

func (m *SessionManager) fetchCustomer(ctx context.Context) (*domain.ShopifyCustomer, error) {
	var customer *domain.ShopifyCustomer
	err := m.withAccessToken(ctx, func(token string) error {
		c, err := m.customers.GetCustomer(ctx, token)
		if err != nil {
			return err
		}
		customer = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// Lifecycle

// Bootstrap restores a session from the token slot. Expired tokens are
// refreshed first; if that fails the slot is cleared without reporting an
// error, since a lapsed session is not a failure.
func (m *SessionManager) Bootstrap(ctx context.Context) error {
	tokens, err := m.loadTokens(ctx)
	if err != nil {
		return m.fail(err)
	}
	if tokens == nil {
		m.update(func() { m.state = domain.StateUnauthenticated })
		return nil
	}

	if tokens.Remaining(m.now()) <= 0 {
		if _, err := m.refresh(ctx, tokens, RefreshStartup); err != nil {
			m.logger.Info().Err(err).Msg("Stored customer session lapsed")
			return m.clearSession(ctx)
		}
	}

	customer, err := m.fetchCustomer(ctx)
	switch {
	case err == nil:
		m.setCustomer(customer)
		return nil
	case errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrNotAuthenticated):
		m.logger.Info().Err(err).Msg("Stored customer session rejected")
		return m.clearSession(ctx)
	default:
		// Tokens are kept so a later RefreshCustomer can recover.
		m.logger.Warn().Err(err).Msg("Failed to load customer during bootstrap")
		m.update(func() { m.state = domain.StateAuthenticated })
		return m.fail(err)
	}
}

// Login prepares a PKCE authorization request and returns the URL the
// visitor must be redirected to.
func (m *SessionManager) Login(ctx context.Context, origin string) (string, error) {
	verifier := pkce.GenerateCodeVerifier()
	state, err := pkce.GenerateState()
	if err != nil {
		return "", m.fail(err)
	}
	nonce, err := pkce.GenerateNonce()
	if err != nil {
		return "", m.fail(err)
	}

	params := domain.PKCEParams{
		CodeVerifier: verifier,
		State:        state,
		Nonce:        nonce,
		RedirectURI:  strings.TrimRight(origin, "/") + CallbackPath,
	}

	authURL, err := m.auth.AuthorizationURL(ports.AuthorizationRequest{
		RedirectURI:   params.RedirectURI,
		State:         params.State,
		Nonce:         params.Nonce,
		CodeChallenge: pkce.GenerateCodeChallenge(verifier),
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to build authorization URL")
		return "", m.fail(err)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", m.fail(fmt.Errorf("failed to encode authentication parameters: %w", err))
	}
	if err := m.flow.Set(ctx, PKCEStorageKey, string(raw)); err != nil {
		return "", m.fail(fmt.Errorf("failed to store authentication parameters: %w", err))
	}

	m.update(func() {
		m.state = domain.StateAuthenticating
		m.lastErr = ""
	})
	m.logger.Info().Str("redirect_uri", params.RedirectURI).Msg("Customer login started")
	return authURL, nil
}

// HandleCallback completes the authorization code flow. The stored PKCE
// record is consumed whether or not the callback succeeds.
func (m *SessionManager) HandleCallback(ctx context.Context, code string, state string) error {
	m.update(func() { m.state = domain.StateCompletingCallback })

	err := m.completeCallback(ctx, code, state)
	m.observeLogin(err)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Customer login callback failed")
		if errors.Is(err, domain.ErrPKCENotFound) {
			return m.failWithoutFlow(err)
		}
		if clearErr := m.clearSession(ctx); clearErr != nil {
			m.logger.Error().Err(clearErr).Msg("Failed to clear session after callback failure")
		}
		return m.fail(err)
	}

	m.logger.Info().Msg("Customer logged in")
	return nil
}

// failWithoutFlow ends a callback that consumed no PKCE record. The token
// slot is left alone: it may belong to a concurrent callback that won the record.
func (m *SessionManager) failWithoutFlow(err error) error {
	authenticated := false
	m.update(func() {
		authenticated = m.customer != nil
		if authenticated {
			m.state = domain.StateAuthenticated
		} else {
			m.state = domain.StateUnauthenticated
		}
	})
	if authenticated {
		return err
	}
	return m.fail(err)
}

func (m *SessionManager) completeCallback(ctx context.Context, code string, state string) error {
	// Take makes the record single use even when callbacks race
	raw, found, err := m.flow.Take(ctx, PKCEStorageKey)
	if err != nil {
		return fmt.Errorf("failed to read authentication parameters: %w", err)
	}
	if !found {
		return domain.ErrPKCENotFound
	}

	var params domain.PKCEParams
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPKCENotFound, err)
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(params.State)) != 1 {
		return domain.ErrStateMismatch
	}

	oauthTokens, err := m.auth.ExchangeCode(ctx, code, params.CodeVerifier, params.RedirectURI)
	if err != nil {
		return err
	}

	tokens := domain.NewStoredTokens(oauthTokens, m.now())
	if err := m.saveTokens(ctx, tokens, nil); err != nil {
		return err
	}

	customer, err := m.customers.GetCustomer(ctx, tokens.AccessToken)
	if err != nil {
		return err
	}
	m.setCustomer(customer)
	return nil
}

// Logout clears the session and returns where to send the visitor: the
// identity provider's logout endpoint when an ID token is known, else origin.
func (m *SessionManager) Logout(ctx context.Context, origin string) (string, error) {
	tokens, err := m.loadTokens(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to read tokens during logout")
	}

	if err := m.clearSession(ctx); err != nil {
		return "", m.fail(err)
	}
	m.ClearError()

	target := origin
	if tokens != nil && tokens.IDToken != "" {
		logoutURL, err := m.auth.LogoutURL(tokens.IDToken, origin)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Failed to build logout URL")
		} else {
			target = logoutURL
		}
	}

	m.logger.Info().Msg("Customer logged out")
	return target, nil
}

// MoveTo hands the logged-in session over to target and leaves m
// unauthenticated. The token slot is taken atomically, so a refresh still
// running on m cannot write it back.
func (m *SessionManager) MoveTo(ctx context.Context, target *SessionManager) error {
	m.slotMu.Lock()
	m.generation++
	raw, found, err := m.tokens.Take(ctx, TokenStorageKey)
	m.slotMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to take stored tokens: %w", err)
	}

	customer := m.Customer()
	m.update(func() {
		m.customer = nil
		m.state = domain.StateUnauthenticated
	})
	if !found {
		return domain.ErrNotAuthenticated
	}

	target.slotMu.Lock()
	err = target.tokens.Set(ctx, TokenStorageKey, raw)
	target.slotMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}

	target.setCustomer(customer)
	m.logger.Info().Str("new_session_id", target.sessionID).Msg("Customer session moved")
	return nil
}

// Customer operations

// RefreshCustomer re-fetches the customer record
func (m *SessionManager) RefreshCustomer(ctx context.Context) error {
	customer, err := m.fetchCustomer(ctx)
	if err != nil {
		return m.fail(err)
	}
	m.setCustomer(customer)
	return nil
}

// mutate runs a mutation, surfaces its first user error, and on success
// replaces the customer with a fresh fetch.
func (m *SessionManager) mutate(ctx context.Context, operation string, call func(token string) ([]domain.UserErrorDetail, error)) error {
	var userErrors []domain.UserErrorDetail
	err := m.withAccessToken(ctx, func(token string) error {
		ue, err := call(token)
		userErrors = ue
		return err
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("operation", operation).Msg("Customer mutation failed")
		return m.fail(err)
	}

	if len(userErrors) > 0 {
		m.logger.Info().
			Str("operation", operation).
			Strs("field", userErrors[0].Field).
			Str("code", userErrors[0].Code).
			Msg("Customer mutation rejected")
		return m.fail(&domain.UserError{Operation: operation, Detail: userErrors[0]})
	}

	return m.RefreshCustomer(ctx)
}

// UpdateProfile changes the customer's names
func (m *SessionManager) UpdateProfile(ctx context.Context, input domain.ProfileInput) error {
	return m.mutate(ctx, "customerUpdate", func(token string) ([]domain.UserErrorDetail, error) {
		return m.customers.UpdateCustomer(ctx, token, input)
	})
}

// CreateAddress adds an address, optionally as the default
func (m *SessionManager) CreateAddress(ctx context.Context, input domain.AddressInput, makeDefault bool) error {
	return m.mutate(ctx, "customerAddressCreate", func(token string) ([]domain.UserErrorDetail, error) {
		return m.customers.CreateAddress(ctx, token, input, makeDefault)
	})
}

// UpdateAddress edits an address, optionally making it the default
func (m *SessionManager) UpdateAddress(ctx context.Context, addressID string, input domain.AddressInput, makeDefault bool) error {
	return m.mutate(ctx, "customerAddressUpdate", func(token string) ([]domain.UserErrorDetail, error) {
		return m.customers.UpdateAddress(ctx, token, addressID, &input, makeDefault)
	})
}

// DeleteAddress removes an address
func (m *SessionManager) DeleteAddress(ctx context.Context, addressID string) error {
	return m.mutate(ctx, "customerAddressDelete", func(token string) ([]domain.UserErrorDetail, error) {
		return m.customers.DeleteAddress(ctx, token, addressID)
	})
}

// SetDefaultAddress makes an existing address the default
func (m *SessionManager) SetDefaultAddress(ctx context.Context, addressID string) error {
	return m.mutate(ctx, "customerAddressUpdate", func(token string) ([]domain.UserErrorDetail, error) {
		return m.customers.UpdateAddress(ctx, token, addressID, nil, true)
	})
}
