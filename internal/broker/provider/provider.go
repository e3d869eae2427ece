// Package provider defines the host abstraction the broker hands resolved
// credentials to. The broker never mints outer tokens itself; it parses the
// incoming request, runs the consent and upstream dance, and delegates
// issuance back through this interface.
package provider

import (
	"context"
	"net/http"

	"authgate/internal/broker/models"
)

// CompleteParams carries everything the host needs to finish an
// authorization: the original request, the resolved subject, the granted
// scope, and the typed credential to attach to the grant.
type CompleteParams struct {
	Request models.AuthorizationRequest
	UserID  string
	Scope   []string
	Props   models.AuthProps
}

// Completion is the host's answer: where to send the browser.
type Completion struct {
	RedirectTo string
}

// Provider is implemented by the host runtime (or by the built-in local
// provider for standalone deployments).
type Provider interface {
	// ParseAuthRequest extracts the AuthorizationRequest from an incoming
	// authorize request, validating host-level concerns such as redirect
	// URI registration.
	ParseAuthRequest(r *http.Request) (models.AuthorizationRequest, error)

	// LookupClient resolves a registered client's metadata.
	LookupClient(ctx context.Context, clientID string) (models.ClientInfo, error)

	// CreateClient registers a new client (dynamic registration).
	CreateClient(ctx context.Context, info models.ClientInfo) (models.ClientInfo, error)

	// CompleteAuthorization mints the outer grant for the credential and
	// returns the redirect that closes the loop with the MCP client.
	CompleteAuthorization(ctx context.Context, params CompleteParams) (Completion, error)
}

// RefreshHook is invoked by the host when an MCP client presents a
// refresh_token grant. The broker refreshes the upstream credential and
// returns the updated props for the host to re-attach.
type RefreshHook func(ctx context.Context, props models.AuthProps) (models.AuthProps, error)
