package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"authgate/internal/broker/models"
	"authgate/internal/jwttoken"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/sentinel"
	platformstrings "authgate/pkg/platform/strings"
)

// ClientStore is the registry surface the local provider needs.
type ClientStore interface {
	Lookup(ctx context.Context, clientID string) (models.ClientInfo, error)
	Create(ctx context.Context, info models.ClientInfo) (models.ClientInfo, string, error)
	Authenticate(ctx context.Context, clientID, secret string) error
}

// TokenResponse is the outer token endpoint reply for both grant types.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// grant is an authorization completed through the local provider. Props are
// stored in their encoded form so the credential union survives restarts of
// the issuance layer unchanged.
type grant struct {
	id        string
	clientID  string
	userID    string
	scope     []string
	props     []byte
	expiresAt time.Time
}

const (
	outerCodeTTL     = 2 * time.Minute
	accessTokenTTL   = time.Hour
	grantTTL         = 30 * 24 * time.Hour
	outerTokenIssuer = "authgate"
)

// Local is the built-in Provider for standalone deployments: it registers
// clients, tracks grants in memory, and services the outer token endpoint
// with JWT access tokens. Hosted deployments replace it with their own
// implementation.
type Local struct {
	clients ClientStore
	tokens  *jwttoken.Service
	refresh RefreshHook

	mu            sync.Mutex
	grants        map[string]grant
	codes         map[string]outerCode
	refreshTokens map[string]string

	// now is injected for grant lifecycle tests; defaults to time.Now.
	now func() time.Time
}

type outerCode struct {
	grantID   string
	expiresAt time.Time
}

func NewLocal(clients ClientStore, signingKey string) *Local {
	return &Local{
		clients:       clients,
		tokens:        jwttoken.NewService(signingKey, outerTokenIssuer),
		grants:        make(map[string]grant),
		codes:         make(map[string]outerCode),
		refreshTokens: make(map[string]string),
		now:           time.Now,
	}
}

// SetRefreshHook installs the broker's upstream refresh path, invoked when a
// client presents a refresh_token grant. Set once during wiring.
func (p *Local) SetRefreshHook(hook RefreshHook) {
	p.refresh = hook
}

// ParseAuthRequest validates the incoming authorize query against the
// client's registration.
func (p *Local) ParseAuthRequest(r *http.Request) (models.AuthorizationRequest, error) {
	q := r.URL.Query()

	req := models.AuthorizationRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               platformstrings.DedupeAndTrim(strings.Split(q.Get("scope"), " ")),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}

	if req.ClientID == "" {
		return models.AuthorizationRequest{}, dErrors.New(dErrors.CodeInvalidRequest, "client_id is required")
	}
	if req.ResponseType != "code" {
		return models.AuthorizationRequest{}, dErrors.New(dErrors.CodeInvalidRequest, "response_type must be code")
	}

	info, err := p.clients.Lookup(r.Context(), req.ClientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.AuthorizationRequest{}, dErrors.New(dErrors.CodeInvalidClient, "unknown client")
		}
		return models.AuthorizationRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "client lookup failed")
	}
	if req.RedirectURI == "" || !slices.Contains(info.RedirectURIs, req.RedirectURI) {
		return models.AuthorizationRequest{}, dErrors.New(dErrors.CodeInvalidRequest, "redirect_uri is not registered for this client")
	}
	if req.CodeChallenge != "" && req.CodeChallengeMethod != "S256" {
		return models.AuthorizationRequest{}, dErrors.New(dErrors.CodeInvalidRequest, "only the S256 code_challenge_method is supported")
	}

	return req, nil
}

func (p *Local) LookupClient(ctx context.Context, clientID string) (models.ClientInfo, error) {
	info, err := p.clients.Lookup(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.ClientInfo{}, dErrors.New(dErrors.CodeInvalidClient, "unknown client")
		}
		return models.ClientInfo{}, dErrors.Wrap(err, dErrors.CodeInternal, "client lookup failed")
	}
	return info, nil
}

// CreateClient registers the client and attaches the one-time plaintext
// secret to the response. It is shown here and never again; only its hash
// is stored.
func (p *Local) CreateClient(ctx context.Context, info models.ClientInfo) (models.ClientInfo, error) {
	created, secret, err := p.clients.Create(ctx, info)
	if err != nil {
		return models.ClientInfo{}, err
	}
	created.ClientSecret = secret
	return created, nil
}

// CompleteAuthorization records the grant and sends the browser back to the
// client with an outer authorization code and its original state.
func (p *Local) CompleteAuthorization(_ context.Context, params CompleteParams) (Completion, error) {
	props, err := models.EncodeAuthProps(params.Props)
	if err != nil {
		return Completion{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode credential props")
	}

	now := p.now()
	g := grant{
		id:        uuid.NewString(),
		clientID:  params.Request.ClientID,
		userID:    params.UserID,
		scope:     params.Scope,
		props:     props,
		expiresAt: now.Add(grantTTL),
	}
	code := uuid.NewString()

	p.mu.Lock()
	p.sweepLocked(now)
	p.grants[g.id] = g
	p.codes[code] = outerCode{grantID: g.id, expiresAt: now.Add(outerCodeTTL)}
	p.mu.Unlock()

	redirect, err := url.Parse(params.Request.RedirectURI)
	if err != nil {
		return Completion{}, dErrors.Wrap(err, dErrors.CodeInvalidRequest, "invalid redirect_uri")
	}
	q := redirect.Query()
	q.Set("code", code)
	if params.Request.State != "" {
		q.Set("state", params.Request.State)
	}
	redirect.RawQuery = q.Encode()

	return Completion{RedirectTo: redirect.String()}, nil
}

// Exchange services the authorization_code grant at the outer token
// endpoint. The code is single-use and bound to the client that started the
// flow; the reply carries a rotating refresh token pointing at the grant.
func (p *Local) Exchange(ctx context.Context, clientID, clientSecret, code string) (TokenResponse, error) {
	if err := p.clients.Authenticate(ctx, clientID, clientSecret); err != nil {
		return TokenResponse{}, err
	}

	now := p.now()
	p.mu.Lock()
	oc, ok := p.codes[code]
	delete(p.codes, code)
	g, haveGrant := p.grants[oc.grantID]
	p.mu.Unlock()

	if !ok || !haveGrant || now.After(oc.expiresAt) {
		return TokenResponse{}, dErrors.New(dErrors.CodeInvalidGrant, "unknown or expired authorization code")
	}
	if g.clientID != clientID {
		return TokenResponse{}, dErrors.New(dErrors.CodeInvalidGrant, "authorization code was issued to another client")
	}

	return p.issueTokens(g, now)
}

// RefreshToken services the refresh_token grant: the upstream credential is
// refreshed through the broker's hook, swapped into the grant, and a fresh
// token pair is issued. Refresh tokens rotate on every use.
func (p *Local) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (TokenResponse, error) {
	if err := p.clients.Authenticate(ctx, clientID, clientSecret); err != nil {
		return TokenResponse{}, err
	}
	if p.refresh == nil {
		return TokenResponse{}, dErrors.New(dErrors.CodeInternal, "refresh hook is not installed")
	}

	now := p.now()
	p.mu.Lock()
	grantID, ok := p.refreshTokens[refreshToken]
	delete(p.refreshTokens, refreshToken)
	g, haveGrant := p.grants[grantID]
	p.mu.Unlock()

	if !ok || !haveGrant || now.After(g.expiresAt) {
		return TokenResponse{}, dErrors.New(dErrors.CodeInvalidGrant, "unknown or expired refresh token")
	}
	if g.clientID != clientID {
		return TokenResponse{}, dErrors.New(dErrors.CodeInvalidGrant, "refresh token was issued to another client")
	}

	props, err := models.DecodeAuthProps(g.props)
	if err != nil {
		return TokenResponse{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode grant props")
	}
	updated, err := p.refresh(ctx, props)
	if err != nil {
		return TokenResponse{}, err
	}
	if err := p.UpdateGrantProps(g.id, updated); err != nil {
		return TokenResponse{}, err
	}

	return p.issueTokens(g, now)
}

// issueTokens mints the access/refresh token pair for a grant and extends
// its lifetime.
func (p *Local) issueTokens(g grant, now time.Time) (TokenResponse, error) {
	accessToken, err := p.tokens.GenerateAccessToken(g.clientID, g.id, strings.Join(g.scope, " "), accessTokenTTL)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("mint outer token: %w", err)
	}
	refreshToken := uuid.NewString()

	p.mu.Lock()
	p.refreshTokens[refreshToken] = g.id
	g.expiresAt = now.Add(grantTTL)
	p.grants[g.id] = g
	p.mu.Unlock()

	return TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(g.scope, " "),
	}, nil
}

// sweepLocked drops expired codes and grants so an abandoned flow or a
// client that never refreshes cannot grow the maps without bound.
func (p *Local) sweepLocked(now time.Time) {
	for code, oc := range p.codes {
		if now.After(oc.expiresAt) {
			delete(p.codes, code)
		}
	}
	for id, g := range p.grants {
		if now.After(g.expiresAt) {
			delete(p.grants, id)
		}
	}
	for token, grantID := range p.refreshTokens {
		if _, ok := p.grants[grantID]; !ok {
			delete(p.refreshTokens, token)
		}
	}
}

// UpdateGrantProps swaps refreshed credential props into a grant.
func (p *Local) UpdateGrantProps(grantID string, props models.AuthProps) error {
	encoded, err := models.EncodeAuthProps(props)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode credential props")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.grants[grantID]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidGrant, "unknown grant")
	}
	g.props = encoded
	p.grants[grantID] = g
	return nil
}

// GrantProps returns the stored credential for a grant, for hosts that
// validate an outer access token and need the upstream credential behind it.
func (p *Local) GrantProps(grantID string) (models.AuthProps, error) {
	p.mu.Lock()
	g, ok := p.grants[grantID]
	p.mu.Unlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidGrant, "unknown grant")
	}
	return models.DecodeAuthProps(g.props)
}
