// Package handler exposes the broker over HTTP. Handlers stay thin: cookie
// plumbing, form decoding and error rendering live here, every flow decision
// lives in the service. Cookies are HttpOnly and SameSite=Lax throughout;
// the CSRF cookie is cleared after a single consent decision.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Broker,Registrar,Issuer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"authgate/internal/broker/cookie"
	"authgate/internal/broker/device"
	"authgate/internal/broker/models"
	"authgate/internal/broker/provider"
	"authgate/internal/broker/service"
	"authgate/internal/platform/metrics"
	"authgate/internal/platform/middleware"
	dErrors "authgate/pkg/domain-errors"
)

// Cookie base names. The session binding and CSRF cookies live only as long
// as one flow; the approved-clients cookie persists across flows. Behind
// HTTPS every name gets the __Host- prefix so browsers refuse to accept the
// cookie over an insecure channel.
const (
	sessionCookieName  = "authgate_session"
	csrfCookieName     = "authgate_csrf"
	approvedCookieName = "authgate_approved_clients"

	secureCookiePrefix = "__Host-"
)

// Broker is the orchestrator surface the handlers call.
type Broker interface {
	StartAuthorization(ctx context.Context, r *http.Request, approvedCookie string) (service.StartResult, error)
	ApproveConsent(ctx context.Context, params service.ApproveParams) (service.FlowRedirect, error)
	DenyConsent(ctx context.Context, params service.ApproveParams) (string, error)
	Callback(ctx context.Context, params service.CallbackParams) (service.CallbackResult, error)
}

// Registrar handles dynamic client registration.
type Registrar interface {
	CreateClient(ctx context.Context, info models.ClientInfo) (models.ClientInfo, error)
}

// Issuer services the outer token endpoint for standalone deployments.
type Issuer interface {
	Exchange(ctx context.Context, clientID, clientSecret, code string) (provider.TokenResponse, error)
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (provider.TokenResponse, error)
}

// Options tunes cookie behavior.
type Options struct {
	// SecureCookies must be true behind HTTPS. Off only for local runs.
	SecureCookies bool
	CSRFTTL       time.Duration
	BindingTTL    time.Duration
	ApprovedTTL   time.Duration
}

// Handler serves the authorize, callback and registration endpoints.
type Handler struct {
	logger    *slog.Logger
	broker    Broker
	registrar Registrar
	issuer    Issuer
	approved  *cookie.ApprovedClients
	metrics   *metrics.Metrics
	opts      Options
}

// New creates the broker HTTP handler.
func New(broker Broker, registrar Registrar, issuer Issuer, approved *cookie.ApprovedClients, logger *slog.Logger, m *metrics.Metrics, opts Options) *Handler {
	if opts.CSRFTTL <= 0 {
		opts.CSRFTTL = models.PendingAuthorizationTTL
	}
	if opts.BindingTTL <= 0 {
		opts.BindingTTL = models.PendingAuthorizationTTL
	}
	if opts.ApprovedTTL <= 0 {
		opts.ApprovedTTL = 365 * 24 * time.Hour
	}
	return &Handler{
		logger:    logger,
		broker:    broker,
		registrar: registrar,
		issuer:    issuer,
		approved:  approved,
		metrics:   m,
		opts:      opts,
	}
}

// Register mounts the OAuth routes on the chi router.
func (h *Handler) Register(r chi.Router) {
	oauthRouter := chi.NewRouter()
	oauthRouter.Use(middleware.Recovery(h.logger))
	oauthRouter.Use(middleware.RequestID)
	oauthRouter.Use(middleware.Logger(h.logger))
	oauthRouter.Get("/oauth/authorize", h.handleAuthorize)
	oauthRouter.Post("/oauth/authorize", h.handleConsentDecision)
	oauthRouter.Get("/oauth/callback", h.handleCallback)
	oauthRouter.Post("/oauth/token", h.handleToken)
	oauthRouter.Post("/oauth/register", h.handleRegister)

	r.Mount("/", oauthRouter)
}

// handleAuthorize starts a flow. Known-and-approved clients are redirected
// straight upstream; everyone else sees the consent dialog.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.broker.StartAuthorization(ctx, r, h.cookieValue(r, approvedCookieName))
	if err != nil {
		h.writeOAuthError(w, r, err)
		return
	}

	if result.Redirect != nil {
		h.setCookie(w, sessionCookieName, result.Redirect.SessionBinding, h.opts.BindingTTL)
		http.Redirect(w, r, result.Redirect.URL, http.StatusFound)
		return
	}

	h.setCookie(w, csrfCookieName, result.Consent.CSRFToken, h.opts.CSRFTTL)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Consent.HTML)
}

// handleConsentDecision accepts the dialog form. CSRF is checked before
// anything else; the CSRF cookie is single-use either way.
func (h *Handler) handleConsentDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, r, dErrors.Wrap(err, dErrors.CodeInvalidRequest, "malformed form body"))
		return
	}

	cookieToken := h.cookieValue(r, csrfCookieName)
	h.clearCookie(w, csrfCookieName)
	if err := cookie.ValidateCSRF(r.PostFormValue("csrf_token"), cookieToken); err != nil {
		if h.metrics != nil && dErrors.Is(err, dErrors.CodeSecurityViolation) {
			h.metrics.SecurityViolations.WithLabelValues("csrf").Inc()
		}
		h.logger.WarnContext(ctx, "consent submission failed csrf validation",
			"request_id", middleware.GetRequestID(ctx))
		h.writeOAuthError(w, r, err)
		return
	}

	params := service.ApproveParams{
		EncodedState: r.PostFormValue("state"),
		Device:       device.ParseUserAgent(r.UserAgent()),
	}

	if r.PostFormValue("decision") != "approve" {
		redirectTo, err := h.broker.DenyConsent(ctx, params)
		if err != nil {
			h.writeOAuthError(w, r, err)
			return
		}
		http.Redirect(w, r, redirectTo, http.StatusFound)
		return
	}

	redirect, err := h.broker.ApproveConsent(ctx, params)
	if err != nil {
		h.writeOAuthError(w, r, err)
		return
	}

	// A tampered approval cookie was already rejected and logged on GET;
	// rebuilding from an empty list here just re-establishes a valid one.
	existing, _ := h.approved.Decode(h.cookieValue(r, approvedCookieName))
	if value, err := h.approved.Approve(existing, redirect.ClientID); err == nil {
		h.setCookie(w, approvedCookieName, value, h.opts.ApprovedTTL)
	} else {
		h.logger.WarnContext(ctx, "could not update approved-clients cookie", "error", err.Error())
	}

	h.setCookie(w, sessionCookieName, redirect.SessionBinding, h.opts.BindingTTL)
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// handleCallback completes the flow when the upstream provider redirects
// back. The binding cookie is cleared no matter the outcome; it has no use
// after its single flow ends.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	binding := h.cookieValue(r, sessionCookieName)
	h.clearCookie(w, sessionCookieName)

	if upstreamErr := q.Get("error"); upstreamErr != "" {
		h.logger.WarnContext(ctx, "upstream provider returned an error",
			"request_id", middleware.GetRequestID(ctx),
			"upstream_error", upstreamErr)
		h.writeOAuthError(w, r, dErrors.New(dErrors.CodeAccessDenied, "the identity provider denied the request"))
		return
	}

	result, err := h.broker.Callback(ctx, service.CallbackParams{
		Code:           q.Get("code"),
		StateToken:     q.Get("state"),
		SessionBinding: binding,
		Device:         device.ParseUserAgent(r.UserAgent()),
	})
	if err != nil {
		h.writeOAuthError(w, r, err)
		return
	}

	http.Redirect(w, r, result.RedirectTo, http.StatusFound)
}

// handleToken services the outer token endpoint. Client credentials arrive
// via HTTP Basic auth or, failing that, the form body; both are accepted so
// public-client libraries that only speak one style still work.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, r, dErrors.Wrap(err, dErrors.CodeInvalidRequest, "malformed form body"))
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostFormValue("client_id")
		clientSecret = r.PostFormValue("client_secret")
	}
	if clientID == "" {
		h.writeOAuthError(w, r, dErrors.New(dErrors.CodeInvalidClient, "client authentication is required"))
		return
	}

	var (
		resp provider.TokenResponse
		err  error
	)
	switch grantType := r.PostFormValue("grant_type"); grantType {
	case "authorization_code":
		resp, err = h.issuer.Exchange(ctx, clientID, clientSecret, r.PostFormValue("code"))
	case "refresh_token":
		resp, err = h.issuer.RefreshToken(ctx, clientID, clientSecret, r.PostFormValue("refresh_token"))
	default:
		err = dErrors.New(dErrors.CodeInvalidRequest, "unsupported grant_type")
	}
	if err != nil {
		h.writeOAuthError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode token response", "error", err.Error())
	}
}

// handleRegister performs dynamic client registration.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var info models.ClientInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		h.writeOAuthError(w, r, dErrors.Wrap(err, dErrors.CodeInvalidRequest, "invalid registration body"))
		return
	}

	created, err := h.registrar.CreateClient(ctx, info)
	if err != nil {
		h.writeOAuthError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode registration response", "error", err.Error())
	}
}

func (h *Handler) cookieName(base string) string {
	if h.opts.SecureCookies {
		return secureCookiePrefix + base
	}
	return base
}

func (h *Handler) cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(h.cookieName(name))
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName(name),
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName(name),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

type oauthErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeOAuthError renders the RFC 6749 JSON error body. Internal and
// security failures collapse to a generic description so the response never
// reveals which check tripped.
func (h *Handler) writeOAuthError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	description := "the request could not be completed"
	var de *dErrors.Error
	if errors.As(err, &de) && code != dErrors.CodeInternal && code != dErrors.CodeSecurityViolation {
		description = de.Message
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"request_id", middleware.GetRequestID(ctx),
			"path", r.URL.Path,
			"error", err.Error())
	} else {
		h.logger.WarnContext(ctx, "request rejected",
			"request_id", middleware.GetRequestID(ctx),
			"path", r.URL.Path,
			"error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(oauthErrorBody{
		Error:       dErrors.ToOAuthCode(code),
		Description: description,
	})
}
