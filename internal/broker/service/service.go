// Package service orchestrates the authorization flow: parse the client's
// request, gate it on consent, hand the browser to the upstream provider,
// and on callback turn the upstream code into a typed credential for the
// host. Handlers stay thin; every security decision lives here or in the
// packages this service composes.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Host,Exchanger,Resolver,PendingStore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"authgate/internal/broker/consent"
	"authgate/internal/broker/cookie"
	"authgate/internal/broker/device"
	"authgate/internal/broker/identity"
	"authgate/internal/broker/models"
	"authgate/internal/broker/pkce"
	"authgate/internal/broker/provider"
	"authgate/internal/broker/session"
	"authgate/internal/platform/metrics"
	"authgate/internal/platform/middleware"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/audit"
	"authgate/pkg/platform/sentinel"
)

// Host is the provider surface the orchestrator drives. Satisfied by
// provider.Local and by host-supplied implementations.
type Host interface {
	ParseAuthRequest(r *http.Request) (models.AuthorizationRequest, error)
	LookupClient(ctx context.Context, clientID string) (models.ClientInfo, error)
	CompleteAuthorization(ctx context.Context, params provider.CompleteParams) (provider.Completion, error)
}

// Exchanger is the upstream token client surface.
type Exchanger interface {
	AuthorizeRedirectURL(stateToken, codeChallenge, method string, scopes []string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (models.UpstreamToken, error)
	Refresh(ctx context.Context, refreshToken string) (models.UpstreamToken, error)
}

// Resolver types upstream access tokens.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string) (identity.Resolution, error)
}

// PendingStore holds single-use in-flight authorization records.
type PendingStore interface {
	Put(ctx context.Context, stateToken string, record models.PendingAuthorization, ttl time.Duration) error
	Consume(ctx context.Context, stateToken string) (models.PendingAuthorization, error)
}

// FlowRedirect sends the browser to the upstream provider. The handler must
// set the session-binding cookie to SessionBinding before redirecting.
type FlowRedirect struct {
	URL            string
	StateToken     string
	SessionBinding string
	ClientID       string
}

// ConsentPage is a rendered approval dialog. The handler must set the CSRF
// cookie to CSRFToken alongside the response body.
type ConsentPage struct {
	HTML      []byte
	CSRFToken string
	ClientID  string
}

// StartResult is the outcome of the authorize endpoint: exactly one of
// Redirect (approved-clients fast path) or Consent is non-nil.
type StartResult struct {
	Redirect *FlowRedirect
	Consent  *ConsentPage
}

// ApproveParams carries the consent form submission after the handler has
// already validated the CSRF pair.
type ApproveParams struct {
	EncodedState string
	Device       string
}

// CallbackParams carries the provider's redirect back plus the binding cookie
// presented by the browser.
type CallbackParams struct {
	Code           string
	StateToken     string
	SessionBinding string
	Device         string
}

// CallbackResult is the completed flow: where the host sends the browser and
// which client the grant belongs to.
type CallbackResult struct {
	RedirectTo string
	ClientID   string
}

// Service wires the flow together. All dependencies are injected; a Service
// carries no per-request state.
type Service struct {
	host      Host
	store     PendingStore
	exchanger Exchanger
	resolver  Resolver
	approved  *cookie.ApprovedClients

	server     consent.ServerInfo
	submitURL  string
	pendingTTL time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   audit.Publisher
	tracer  trace.Tracer
}

// Option configures optional Service collaborators.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithServerInfo(info consent.ServerInfo) Option {
	return func(s *Service) { s.server = info }
}

// WithSubmitURL sets the consent form's POST target. Defaults to
// /oauth/authorize.
func WithSubmitURL(u string) Option {
	return func(s *Service) { s.submitURL = u }
}

func WithPendingTTL(ttl time.Duration) Option {
	return func(s *Service) { s.pendingTTL = ttl }
}

// New builds a Service. The four flow collaborators are required.
func New(host Host, store PendingStore, exchanger Exchanger, resolver Resolver, approved *cookie.ApprovedClients, opts ...Option) (*Service, error) {
	if host == nil {
		return nil, errors.New("host provider is required")
	}
	if store == nil {
		return nil, errors.New("pending store is required")
	}
	if exchanger == nil {
		return nil, errors.New("upstream exchanger is required")
	}
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if approved == nil {
		return nil, errors.New("approved-clients codec is required")
	}

	s := &Service{
		host:       host,
		store:      store,
		exchanger:  exchanger,
		resolver:   resolver,
		approved:   approved,
		server:     consent.ServerInfo{Name: "AuthGate"},
		submitURL:  "/oauth/authorize",
		pendingTTL: models.PendingAuthorizationTTL,
		logger:     slog.Default(),
		audit:      audit.NewMemoryPublisher(),
		tracer:     otel.Tracer("authgate/broker"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StartAuthorization handles GET /oauth/authorize. A client on the verified
// approved list skips consent and goes straight upstream; everyone else gets
// the dialog. A tampered approved-clients cookie downgrades to "no prior
// approvals" rather than aborting the flow, since the user can simply
// re-consent.
func (s *Service) StartAuthorization(ctx context.Context, r *http.Request, approvedCookie string) (StartResult, error) {
	ctx, span := s.tracer.Start(ctx, "broker.start_authorization")
	defer span.End()

	req, err := s.host.ParseAuthRequest(r)
	if err != nil {
		s.failStep(span, "parse", err)
		return StartResult{}, err
	}
	span.SetAttributes(attribute.String("oauth.client_id", req.ClientID))
	if s.metrics != nil {
		s.metrics.FlowsStarted.Inc()
	}
	dev := device.ParseUserAgent(r.UserAgent())
	s.publish(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   "flow_started",
		ClientID: req.ClientID,
		Device:   dev,
	})

	approvedIDs, err := s.approved.Decode(approvedCookie)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SecurityViolations.WithLabelValues("cookie_signature").Inc()
		}
		s.publish(ctx, audit.Event{
			Category: audit.CategorySecurity,
			Action:   "approved_cookie_rejected",
			ClientID: req.ClientID,
			Device:   dev,
			Reason:   err.Error(),
		})
		s.logger.WarnContext(ctx, "approved-clients cookie failed verification, treating as empty",
			slog.String("client_id", req.ClientID))
		approvedIDs = nil
	}

	if s.approved.Contains(approvedIDs, req.ClientID) {
		redirect, err := s.beginUpstream(ctx, span, req)
		if err != nil {
			return StartResult{}, err
		}
		if s.metrics != nil {
			s.metrics.ConsentSkipped.Inc()
		}
		s.publish(ctx, audit.Event{
			Category: audit.CategoryOperations,
			Action:   "consent_skipped",
			ClientID: req.ClientID,
			Device:   dev,
		})
		return StartResult{Redirect: &redirect}, nil
	}

	client, err := s.host.LookupClient(ctx, req.ClientID)
	if err != nil {
		s.failStep(span, "client_lookup", err)
		return StartResult{}, err
	}
	encoded, err := EncodeState(req)
	if err != nil {
		s.failStep(span, "consent", err)
		return StartResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not prepare consent dialog")
	}
	csrfToken := cookie.NewCSRFToken()
	html, err := consent.Render(consent.DialogData{
		Server:       s.server,
		Client:       client,
		Scopes:       req.Scope,
		CSRFToken:    csrfToken,
		EncodedState: encoded,
		SubmitURL:    s.submitURL,
	})
	if err != nil {
		s.failStep(span, "consent", err)
		return StartResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not render consent dialog")
	}
	if s.metrics != nil {
		s.metrics.ConsentRendered.Inc()
	}
	s.publish(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   "consent_rendered",
		ClientID: req.ClientID,
		Device:   dev,
	})
	return StartResult{Consent: &ConsentPage{HTML: html, CSRFToken: csrfToken, ClientID: req.ClientID}}, nil
}

// ApproveConsent handles an approved consent form. The handler validates the
// CSRF pair before calling; this method creates the pending record and sends
// the browser upstream.
func (s *Service) ApproveConsent(ctx context.Context, params ApproveParams) (FlowRedirect, error) {
	ctx, span := s.tracer.Start(ctx, "broker.approve_consent")
	defer span.End()

	req, err := DecodeState(params.EncodedState)
	if err != nil {
		s.failStep(span, "state_decode", err)
		return FlowRedirect{}, err
	}
	span.SetAttributes(attribute.String("oauth.client_id", req.ClientID))

	redirect, err := s.beginUpstream(ctx, span, req)
	if err != nil {
		return FlowRedirect{}, err
	}
	s.publish(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   "consent_approved",
		ClientID: req.ClientID,
		Device:   params.Device,
	})
	return redirect, nil
}

// DenyConsent returns the client redirect carrying access_denied, preserving
// the client's own state parameter.
func (s *Service) DenyConsent(ctx context.Context, params ApproveParams) (string, error) {
	req, err := DecodeState(params.EncodedState)
	if err != nil {
		return "", err
	}
	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidRequest, "invalid redirect_uri")
	}
	q := redirect.Query()
	q.Set("error", "access_denied")
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()

	s.publish(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   "consent_denied",
		ClientID: req.ClientID,
		Device:   params.Device,
	})
	return redirect.String(), nil
}

// beginUpstream is the shared tail of both consent paths: fresh PKCE pair,
// fresh state token, pending record, upstream redirect.
func (s *Service) beginUpstream(ctx context.Context, span trace.Span, req models.AuthorizationRequest) (FlowRedirect, error) {
	pair, err := pkce.Generate()
	if err != nil {
		s.failStep(span, "pkce", err)
		return FlowRedirect{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not start authorization")
	}
	stateToken, err := newStateToken()
	if err != nil {
		s.failStep(span, "pkce", err)
		return FlowRedirect{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not start authorization")
	}

	record := models.PendingAuthorization{OAuthReqInfo: req, CodeVerifier: pair.Verifier}
	if err := s.store.Put(ctx, stateToken, record, s.pendingTTL); err != nil {
		s.failStep(span, "store", err)
		return FlowRedirect{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist authorization state")
	}

	return FlowRedirect{
		URL:            s.exchanger.AuthorizeRedirectURL(stateToken, pair.Challenge, pair.Method, req.Scope),
		StateToken:     stateToken,
		SessionBinding: session.Bind(stateToken),
		ClientID:       req.ClientID,
	}, nil
}

// Callback completes the flow when the provider redirects back.
//
// Order matters: the session binding is checked before the pending record is
// consumed, so a forged callback cannot burn a victim's in-flight state, and
// the record is consumed before the code is exchanged, so two racing
// callbacks can never both reach the token endpoint.
func (s *Service) Callback(ctx context.Context, params CallbackParams) (CallbackResult, error) {
	ctx, span := s.tracer.Start(ctx, "broker.callback")
	defer span.End()

	if !session.Validate(params.StateToken, params.SessionBinding) {
		if s.metrics != nil {
			s.metrics.SecurityViolations.WithLabelValues("session_binding").Inc()
		}
		s.publish(ctx, audit.Event{
			Category: audit.CategorySecurity,
			Action:   "session_binding_mismatch",
			Device:   params.Device,
			Reason:   "callback did not present the binding cookie for its state token",
		})
		err := dErrors.New(dErrors.CodeSecurityViolation, "authorization state does not belong to this browser")
		s.failStep(span, "binding", err)
		return CallbackResult{}, err
	}

	record, err := s.store.Consume(ctx, params.StateToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.publish(ctx, audit.Event{
				Category: audit.CategorySecurity,
				Action:   "state_not_found",
				Device:   params.Device,
				Reason:   "state token already consumed or expired",
			})
			err = dErrors.Wrap(err, dErrors.CodeInvalidGrant, "unknown or expired authorization state")
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "could not load authorization state")
		}
		s.failStep(span, "state", err)
		return CallbackResult{}, err
	}
	req := record.OAuthReqInfo
	span.SetAttributes(attribute.String("oauth.client_id", req.ClientID))

	exchangeStart := time.Now()
	token, err := s.exchanger.ExchangeCode(ctx, params.Code, record.CodeVerifier)
	if s.metrics != nil {
		s.metrics.ObserveExchange(time.Since(exchangeStart))
	}
	if err != nil {
		s.failStep(span, "exchange", err)
		return CallbackResult{}, err
	}

	res, err := s.resolver.Resolve(ctx, token.AccessToken)
	if err != nil {
		s.failStep(span, "resolve", err)
		return CallbackResult{}, err
	}
	props, err := identity.PropsFor(res, token)
	if err != nil {
		s.failStep(span, "resolve", err)
		return CallbackResult{}, err
	}

	completion, err := s.host.CompleteAuthorization(ctx, provider.CompleteParams{
		Request: req,
		UserID:  subjectID(res),
		Scope:   req.Scope,
		Props:   props,
	})
	if err != nil {
		s.failStep(span, "complete", err)
		return CallbackResult{}, err
	}

	if s.metrics != nil {
		s.metrics.FlowsCompleted.WithLabelValues(props.Type()).Inc()
	}
	span.SetAttributes(attribute.String("oauth.credential_type", props.Type()))
	s.publish(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   "flow_completed",
		ClientID: req.ClientID,
		UserID:   subjectID(res),
		Device:   params.Device,
	})
	s.logger.InfoContext(ctx, "authorization flow completed",
		slog.String("client_id", req.ClientID),
		slog.String("credential_type", props.Type()))

	return CallbackResult{RedirectTo: completion.RedirectTo, ClientID: req.ClientID}, nil
}

// Refresh services the host's refresh hook. Only user-owned credentials carry
// a refresh token; a refresh request against an account token indicates a
// host bug, not a client error.
func (s *Service) Refresh(ctx context.Context, props models.AuthProps) (models.AuthProps, error) {
	ctx, span := s.tracer.Start(ctx, "broker.refresh")
	defer span.End()

	switch p := props.(type) {
	case models.UserTokenProps:
		token, err := s.exchanger.Refresh(ctx, p.RefreshToken)
		if err != nil {
			s.failStep(span, "refresh", err)
			return nil, err
		}
		updated := p
		updated.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			updated.RefreshToken = token.RefreshToken
		}
		s.publish(ctx, audit.Event{
			Category: audit.CategoryOperations,
			Action:   "token_refreshed",
			UserID:   p.User.ID,
		})
		return updated, nil
	case models.AccountTokenProps:
		err := dErrors.New(dErrors.CodeInternal, "account-owned credentials cannot be refreshed")
		s.failStep(span, "refresh", err)
		return nil, err
	default:
		err := dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unsupported credential props %T", props))
		s.failStep(span, "refresh", err)
		return nil, err
	}
}

// RefreshHook adapts Refresh to the provider hook signature.
func (s *Service) RefreshHook() provider.RefreshHook {
	return s.Refresh
}

func subjectID(res identity.Resolution) string {
	if res.User != nil {
		return res.User.ID
	}
	if len(res.Accounts) > 0 {
		return res.Accounts[0].ID
	}
	return ""
}

func (s *Service) failStep(span trace.Span, step string, err error) {
	if s.metrics != nil {
		s.metrics.FlowsFailed.WithLabelValues(step).Inc()
	}
	span.RecordError(err)
}

func (s *Service) publish(ctx context.Context, event audit.Event) {
	event.RequestID = middleware.GetRequestID(ctx)
	if err := s.audit.Publish(ctx, audit.Stamp(event)); err != nil {
		s.logger.WarnContext(ctx, "audit publish failed", slog.String("action", event.Action), slog.Any("error", err))
	}
}
