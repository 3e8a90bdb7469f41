package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"storefront-customer-layer/internal/application"
	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/infrastructure/pubsub"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountOptions configures the account routes
type AccountOptions struct {
	// AppURL is the storefront origin; redirect targets are built from it
	AppURL string
	// ReturnURL is where a completed login lands; defaults to AppURL/account
	ReturnURL     string
	CookieName    string
	SecureCookies bool
	LoginLimit    RateLimitConfig
}

// AccountHandler serves the customer account routes under /account
type AccountHandler struct {
	sessions *application.SessionPool
	events   *pubsub.SessionPubSub
	opts     AccountOptions
	logger   zerolog.Logger
}

// NewAccountHandler creates the account routes
func NewAccountHandler(sessions *application.SessionPool, events *pubsub.SessionPubSub, opts AccountOptions, logger zerolog.Logger) *AccountHandler {
	if opts.CookieName == "" {
		opts.CookieName = "storefront_sid"
	}
	if opts.ReturnURL == "" {
		opts.ReturnURL = opts.AppURL + "/account"
	}
	if opts.LoginLimit.RequestsPerWindow == 0 {
		opts.LoginLimit = LoginLimit
	}
	return &AccountHandler{
		sessions: sessions,
		events:   events,
		opts:     opts,
		logger:   logger,
	}
}

// Routes returns a router to be mounted at /account
func (h *AccountHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessionCookie)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitByIP(h.opts.LoginLimit, h.logger))
		r.Get("/login", h.login)
		r.Get("/callback", h.callback)
	})
	r.Get("/logout", h.logout)
	r.Get("/", h.customer)
	r.Get("/customer", h.customer)
	r.Get("/events", h.streamEvents)

	r.Put("/profile", h.updateProfile)
	r.Post("/addresses", h.createAddress)
	r.Put("/addresses/{addressID}", h.updateAddress)
	r.Delete("/addresses/{addressID}", h.deleteAddress)
	r.Post("/addresses/{addressID}/default", h.setDefaultAddress)

	return r
}

// sessionCookie issues the visitor session cookie and puts its id in the context
func (h *AccountHandler) sessionCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := ""
		if c, err := r.Cookie(h.opts.CookieName); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				sessionID = c.Value
			}
		}

		if sessionID == "" {
			sessionID = uuid.NewString()
			h.setSessionCookie(w, sessionID)
		}

		next.ServeHTTP(w, r.WithContext(domain.WithSessionID(r.Context(), sessionID)))
	})
}

func (h *AccountHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	// Lax so the cookie survives the top-level redirect back from the identity provider
	http.SetCookie(w, &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AccountHandler) session(r *http.Request) *application.SessionManager {
	ctx := r.Context()
	return h.sessions.Get(ctx, domain.GetSessionIDFromContext(ctx))
}

func (h *AccountHandler) view(manager *application.SessionManager) CustomerView {
	return CustomerView{
		IsAuthenticated: manager.IsAuthenticated(),
		Customer:        manager.Customer(),
		Error:           manager.Error(),
	}
}

func (h *AccountHandler) redirectWithError(w http.ResponseWriter, r *http.Request, message string) {
	target := fmt.Sprintf("%s?account_error=%s", h.opts.AppURL, url.QueryEscape(message))
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AccountHandler) login(w http.ResponseWriter, r *http.Request) {
	manager := h.session(r)

	authURL, err := manager.Login(r.Context(), h.opts.AppURL)
	if err != nil {
		h.redirectWithError(w, r, manager.Error())
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *AccountHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if authErr := q.Get("error"); authErr != "" {
		h.logger.Warn().
			Str("session_id", domain.GetSessionIDFromContext(r.Context())).
			Str("error", authErr).
			Str("error_description", q.Get("error_description")).
			Msg("Authorization server returned an error")
		h.redirectWithError(w, r, domain.MsgLoginFailed)
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	manager := h.session(r)
	if err := manager.HandleCallback(ctx, code, state); err != nil {
		h.redirectWithError(w, r, manager.Error())
		return
	}

	// A session id chosen before login must not carry the tokens
	oldID := domain.GetSessionIDFromContext(ctx)
	newID := uuid.NewString()
	if _, err := h.sessions.Rotate(ctx, oldID, newID); err != nil {
		h.logger.Error().Err(err).Str("session_id", oldID).Msg("Failed to rotate session after login")
		h.redirectWithError(w, r, domain.MsgLoginFailed)
		return
	}
	h.setSessionCookie(w, newID)

	http.Redirect(w, r, h.opts.ReturnURL, http.StatusFound)
}

func (h *AccountHandler) logout(w http.ResponseWriter, r *http.Request) {
	manager := h.session(r)

	target, err := manager.Logout(r.Context(), h.opts.AppURL)
	if err != nil {
		h.redirectWithError(w, r, manager.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AccountHandler) customer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view(h.session(r)))
}

type addressRequest struct {
	Address        domain.AddressInput `json:"address"`
	DefaultAddress bool                `json:"defaultAddress"`
}

// respond writes the customer view with a status derived from err
func (h *AccountHandler) respond(w http.ResponseWriter, manager *application.SessionManager, err error) {
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	writeJSON(w, status, h.view(manager))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// addressID returns the unescaped path parameter; address ids are gid:// URIs
func addressID(r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "addressID"))
	return id, err == nil && id != ""
}

func (h *AccountHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var input domain.ProfileInput
	if !decodeBody(w, r, &input) {
		return
	}
	manager := h.session(r)
	h.respond(w, manager, manager.UpdateProfile(r.Context(), input))
}

func (h *AccountHandler) createAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	manager := h.session(r)
	h.respond(w, manager, manager.CreateAddress(r.Context(), req.Address, req.DefaultAddress))
}

func (h *AccountHandler) updateAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := addressID(r)
	if !ok {
		http.Error(w, "Invalid address id", http.StatusBadRequest)
		return
	}
	var req addressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	manager := h.session(r)
	h.respond(w, manager, manager.UpdateAddress(r.Context(), id, req.Address, req.DefaultAddress))
}

func (h *AccountHandler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := addressID(r)
	if !ok {
		http.Error(w, "Invalid address id", http.StatusBadRequest)
		return
	}
	manager := h.session(r)
	h.respond(w, manager, manager.DeleteAddress(r.Context(), id))
}

func (h *AccountHandler) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := addressID(r)
	if !ok {
		http.Error(w, "Invalid address id", http.StatusBadRequest)
		return
	}
	manager := h.session(r)
	h.respond(w, manager, manager.SetDefaultAddress(r.Context(), id))
}
