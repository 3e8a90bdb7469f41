package application

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/infrastructure/repository"
	"storefront-customer-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type exchangeCall struct {
	code, verifier, redirectURI string
}

type fakeAuth struct {
	mu sync.Mutex

	authURLErr  error
	authRequest ports.AuthorizationRequest

	exchangeTokens *domain.OAuthTokens
	exchangeErr    error
	exchanges      []exchangeCall

	refreshTokens *domain.OAuthTokens
	refreshErr    error
	refreshCalls  int
	refreshedWith []string

	// refreshStarted receives a value when Refresh begins; refreshRelease,
	// when set, blocks Refresh until closed.
	refreshStarted chan struct{}
	refreshRelease chan struct{}
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		exchangeTokens: &domain.OAuthTokens{AccessToken: "at-login", RefreshToken: "rt-login", IDToken: "idt-login", ExpiresIn: 3600},
		refreshTokens:  &domain.OAuthTokens{AccessToken: "at-refreshed", RefreshToken: "rt-refreshed", ExpiresIn: 3600},
		refreshStarted: make(chan struct{}, 8),
	}
}

func (a *fakeAuth) AuthorizationURL(req ports.AuthorizationRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.authURLErr != nil {
		return "", a.authURLErr
	}
	a.authRequest = req
	q := url.Values{}
	q.Set("state", req.State)
	q.Set("code_challenge", req.CodeChallenge)
	return "https://shopify.com/green-acres/auth/oauth/authorize?" + q.Encode(), nil
}

func (a *fakeAuth) ExchangeCode(_ context.Context, code string, verifier string, redirectURI string) (*domain.OAuthTokens, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exchanges = append(a.exchanges, exchangeCall{code: code, verifier: verifier, redirectURI: redirectURI})
	if a.exchangeErr != nil {
		return nil, a.exchangeErr
	}
	tokens := *a.exchangeTokens
	return &tokens, nil
}

func (a *fakeAuth) Refresh(_ context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	a.mu.Lock()
	a.refreshCalls++
	a.refreshedWith = append(a.refreshedWith, refreshToken)
	release := a.refreshRelease
	tokens, err := a.refreshTokens, a.refreshErr
	a.mu.Unlock()

	select {
	case a.refreshStarted <- struct{}{}:
	default:
	}
	if release != nil {
		<-release
	}

	if err != nil {
		return nil, err
	}
	copied := *tokens
	return &copied, nil
}

func (a *fakeAuth) LogoutURL(idToken string, postLogoutRedirectURI string) (string, error) {
	q := url.Values{}
	q.Set("id_token_hint", idToken)
	q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	return "https://shopify.com/green-acres/auth/logout?" + q.Encode(), nil
}

func (a *fakeAuth) exchangeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.exchanges)
}

func (a *fakeAuth) refreshCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls
}

type fakeCustomers struct {
	mu sync.Mutex

	// responses are returned in order; the last one repeats
	responses []*domain.ShopifyCustomer
	getErrs   []error
	getCalls  int
	getTokens []string

	userErrors     []domain.UserErrorDetail
	mutationErr    error
	mutationCalls  int
	mutationTokens []string
	lastAddressID  string
	lastDefault    bool
	lastAddress    *domain.AddressInput
}

func newFakeCustomers(responses ...*domain.ShopifyCustomer) *fakeCustomers {
	if len(responses) == 0 {
		responses = []*domain.ShopifyCustomer{testCustomer("c1")}
	}
	return &fakeCustomers{responses: responses}
}

func (c *fakeCustomers) GetCustomer(_ context.Context, accessToken string) (*domain.ShopifyCustomer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.getCalls
	c.getCalls++
	c.getTokens = append(c.getTokens, accessToken)

	if call < len(c.getErrs) && c.getErrs[call] != nil {
		return nil, c.getErrs[call]
	}
	idx := call
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func (c *fakeCustomers) mutation(accessToken string) ([]domain.UserErrorDetail, error) {
	c.mutationCalls++
	c.mutationTokens = append(c.mutationTokens, accessToken)
	if c.mutationErr != nil {
		err := c.mutationErr
		c.mutationErr = nil
		return nil, err
	}
	return c.userErrors, nil
}

func (c *fakeCustomers) UpdateCustomer(_ context.Context, accessToken string, _ domain.ProfileInput) ([]domain.UserErrorDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutation(accessToken)
}

func (c *fakeCustomers) CreateAddress(_ context.Context, accessToken string, input domain.AddressInput, makeDefault bool) ([]domain.UserErrorDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAddress = &input
	c.lastDefault = makeDefault
	return c.mutation(accessToken)
}

func (c *fakeCustomers) UpdateAddress(_ context.Context, accessToken string, addressID string, input *domain.AddressInput, makeDefault bool) ([]domain.UserErrorDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAddressID = addressID
	c.lastAddress = input
	c.lastDefault = makeDefault
	return c.mutation(accessToken)
}

func (c *fakeCustomers) DeleteAddress(_ context.Context, accessToken string, addressID string) ([]domain.UserErrorDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAddressID = addressID
	return c.mutation(accessToken)
}

func (c *fakeCustomers) tokensUsedForMutations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.mutationTokens...)
}

func (c *fakeCustomers) getCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCalls
}

// slowStore delays reads so that concurrent callers overlap
type slowStore struct {
	ports.KeyValueStore
	delay time.Duration
}

func (s slowStore) Get(ctx context.Context, key string) (string, bool, error) {
	time.Sleep(s.delay)
	return s.KeyValueStore.Get(ctx, key)
}

func (s slowStore) Take(ctx context.Context, key string) (string, bool, error) {
	time.Sleep(s.delay)
	return s.KeyValueStore.Take(ctx, key)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (p *fakePublisher) Publish(event *domain.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
}

func (p *fakePublisher) states() []domain.SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	var states []domain.SessionState
	for _, e := range p.events {
		if len(states) == 0 || states[len(states)-1] != e.State {
			states = append(states, e.State)
		}
	}
	return states
}

type fakeMetrics struct {
	mu        sync.Mutex
	logins    map[string]int
	refreshes map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{logins: map[string]int{}, refreshes: map[string]int{}}
}

func (m *fakeMetrics) ObserveLogin(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[result]++
}

func (m *fakeMetrics) ObserveRefresh(mode string, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes[mode+"/"+result]++
}

func (m *fakeMetrics) refreshCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes[key]
}

func testCustomer(id string, addressIDs ...string) *domain.ShopifyCustomer {
	first := "Ada"
	customer := &domain.ShopifyCustomer{
		ID:        id,
		FirstName: &first,
		Addresses: []domain.CustomerAddress{},
		Orders:    []domain.CustomerOrder{},
	}
	for _, a := range addressIDs {
		customer.Addresses = append(customer.Addresses, domain.CustomerAddress{ID: a})
	}
	return customer
}

// harness wires a manager to fakes and in-memory slots
type harness struct {
	clock     *fakeClock
	auth      *fakeAuth
	customers *fakeCustomers
	tokens    *repository.MemoryStore
	flow      *repository.MemoryStore
	publisher *fakePublisher
	metrics   *fakeMetrics
	manager   *SessionManager
}

func newHarness(t *testing.T, customers *fakeCustomers) *harness {
	t.Helper()
	if customers == nil {
		customers = newFakeCustomers()
	}
	h := &harness{
		clock:     newFakeClock(),
		auth:      newFakeAuth(),
		customers: customers,
		tokens:    repository.NewMemoryStore(0),
		publisher: &fakePublisher{},
		metrics:   newFakeMetrics(),
	}
	h.flow = repository.NewMemoryStoreWithClock(10*time.Minute, h.clock.Now)
	h.manager = NewSessionManagerWithOptions(h.auth, h.customers, h.tokens, h.flow, zerolog.Nop(), SessionOptions{
		SessionID: "sid-1",
		Clock:     h.clock.Now,
		Publisher: h.publisher,
		Metrics:   h.metrics,
	})
	t.Cleanup(h.manager.Wait)
	return h
}

// seedTokens stores tokens expiring after ttl (negative = already expired)
func (h *harness) seedTokens(t *testing.T, accessToken string, ttl time.Duration) {
	t.Helper()
	tokens := domain.StoredTokens{
		AccessToken:  accessToken,
		RefreshToken: "rt-" + accessToken,
		IDToken:      "idt-" + accessToken,
		ExpiresAt:    h.clock.Now().Add(ttl).UnixMilli(),
	}
	raw, err := json.Marshal(tokens)
	require.NoError(t, err)
	require.NoError(t, h.tokens.Set(context.Background(), TokenStorageKey, string(raw)))
}

func (h *harness) storedTokens(t *testing.T) *domain.StoredTokens {
	t.Helper()
	raw, found, err := h.tokens.Get(context.Background(), TokenStorageKey)
	require.NoError(t, err)
	if !found {
		return nil
	}
	var tokens domain.StoredTokens
	require.NoError(t, json.Unmarshal([]byte(raw), &tokens))
	return &tokens
}

func (h *harness) storedPKCE(t *testing.T) *domain.PKCEParams {
	t.Helper()
	raw, found, err := h.flow.Get(context.Background(), PKCEStorageKey)
	require.NoError(t, err)
	if !found {
		return nil
	}
	var params domain.PKCEParams
	require.NoError(t, json.Unmarshal([]byte(raw), &params))
	return &params
}
