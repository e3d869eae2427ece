package models

// Credential type discriminators. An account-owned upstream token resolves no
// user identity and can never be refreshed; a user token can.
const (
	TypeUserToken    = "user_token"
	TypeAccountToken = "account_token"
)

// AuthProps is the credential handed to the host's token issuance layer.
// It is a closed union: UserTokenProps or AccountTokenProps.
type AuthProps interface {
	// Type returns the discriminator, TypeUserToken or TypeAccountToken.
	Type() string

	authProps()
}

// UserTokenProps is the user-owned credential variant.
type UserTokenProps struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	User         User      `json:"user"`
	Accounts     []Account `json:"accounts"`
}

func (UserTokenProps) Type() string { return TypeUserToken }
func (UserTokenProps) authProps()   {}

// AccountTokenProps is the account-owned credential variant. It carries no
// refresh token by construction.
type AccountTokenProps struct {
	AccessToken string  `json:"accessToken"`
	Account     Account `json:"account"`
}

func (AccountTokenProps) Type() string { return TypeAccountToken }
func (AccountTokenProps) authProps()   {}
