// Package upstream talks to the identity provider: authorization redirects,
// the authorization_code and refresh_token grants, and nothing else. Errors
// from the token endpoint are never retried here; a failed exchange fails
// the whole flow and the user restarts authorization.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"authgate/internal/broker/models"
	dErrors "authgate/pkg/domain-errors"
)

// Config carries the provider endpoints and our registration with it.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	// RedirectURI is this broker's callback, registered with the provider.
	RedirectURI string
}

// Client wraps golang.org/x/oauth2 with this broker's conventions: basic
// auth at the token endpoint and an explicit code_verifier on exchange.
type Client struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for token endpoint calls,
// mainly for tests pointing at an httptest server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient builds an exchange client for the configured provider.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
				// Basic auth of client_id:client_secret.
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizeRedirectURL builds the upstream authorize URL carrying our state
// token and the freshly generated PKCE challenge. Scopes vary per flow, so
// the shared config is copied rather than mutated; concurrent flows must
// never observe each other's scopes.
func (c *Client) AuthorizeRedirectURL(stateToken, codeChallenge, method string, scopes []string) string {
	cfg := *c.cfg
	cfg.Scopes = scopes
	return cfg.AuthCodeURL(stateToken,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", method),
	)
}

// ExchangeCode redeems an authorization code with the verifier that was
// stored for this specific flow.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (models.UpstreamToken, error) {
	tok, err := c.cfg.Exchange(c.context(ctx), code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return models.UpstreamToken{}, translateTokenError(err, "authorization code exchange failed")
	}
	return fromOAuth2Token(tok), nil
}

// Refresh performs the refresh_token grant. Callers must only pass refresh
// tokens from user-typed credentials; account tokens have none.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.UpstreamToken, error) {
	if refreshToken == "" {
		return models.UpstreamToken{}, dErrors.New(dErrors.CodeInternal, "refresh requested without a refresh token")
	}
	src := c.cfg.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return models.UpstreamToken{}, translateTokenError(err, "refresh token grant failed")
	}
	return fromOAuth2Token(tok), nil
}

func (c *Client) context(ctx context.Context) context.Context {
	if c.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return ctx
}

// translateTokenError keeps provider error details in the wrapped cause while
// classifying every token endpoint failure as internal: these are reported,
// never surfaced verbatim to the browser.
func translateTokenError(err error, message string) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		return dErrors.Wrap(err, dErrors.CodeInternal,
			fmt.Sprintf("%s: upstream returned %d", message, retrieve.Response.StatusCode))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}

func fromOAuth2Token(tok *oauth2.Token) models.UpstreamToken {
	scope, _ := tok.Extra("scope").(string)
	return models.UpstreamToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		Scope:        scope,
		TokenType:    tok.TokenType,
	}
}
