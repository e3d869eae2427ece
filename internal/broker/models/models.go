package models

import "time"

// AuthorizationRequest is the parsed OAuth request from the MCP client.
// Immutable once parsed; it round-trips through the consent form encoded as
// base64 JSON and is stored verbatim in the pending record.
type AuthorizationRequest struct {
	ResponseType        string   `json:"response_type"`
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	Scope               []string `json:"scope"`
	State               string   `json:"state"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
}

// PendingAuthorization ties an in-flight flow to the PKCE verifier generated
// for it. Keyed by a random state token, single-use, 600s TTL.
type PendingAuthorization struct {
	OAuthReqInfo AuthorizationRequest `json:"oauthReqInfo"`
	CodeVerifier string               `json:"codeVerifier"`
}

// PendingAuthorizationTTL bounds how long a browser has to complete the
// upstream round-trip before the flow becomes unresolvable.
const PendingAuthorizationTTL = 600 * time.Second

// ClientInfo is the registered MCP client as resolved by the host provider.
// ClientSecret is populated only on the registration response; lookups never
// carry it, only its bcrypt hash survives.
type ClientInfo struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	ClientName   string   `json:"client_name,omitempty"`
	ClientURI    string   `json:"client_uri,omitempty"`
	LogoURI      string   `json:"logo_uri,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
	PolicyURI    string   `json:"policy_uri,omitempty"`
	TOSURI       string   `json:"tos_uri,omitempty"`
}

// UpstreamToken is the identity provider's token endpoint response.
type UpstreamToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// User is the authenticated upstream identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Account is an upstream account the credential can act on.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
