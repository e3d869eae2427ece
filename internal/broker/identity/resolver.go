// Package identity resolves who an upstream access token belongs to and
// which accounts it can act on. The two lookups are independent and run
// concurrently; their combined outcome decides the credential type.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"authgate/internal/broker/models"
	dErrors "authgate/pkg/domain-errors"
)

const resolveTimeout = 10 * time.Second

// Resolution is the combined lookup result. User is nil for account-owned
// tokens, which the provider's /user endpoint refuses to answer.
type Resolution struct {
	User     *models.User
	Accounts []models.Account
}

// Resolver fetches identity data from the provider API.
type Resolver struct {
	apiBase    string
	httpClient *http.Client
}

// NewResolver builds a resolver against the provider API base URL.
// httpClient may be nil, in which case http.DefaultClient is used.
func NewResolver(apiBase string, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{apiBase: apiBase, httpClient: httpClient}
}

// Resolve issues the user and accounts lookups in parallel.
//
// Outcomes:
//   - user lookup succeeds: user-owned credential, with whatever accounts resolved
//   - user lookup fails but accounts resolve: account-owned token
//   - both fail: fatal resolution error
func (r *Resolver) Resolve(ctx context.Context, accessToken string) (Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	var (
		user        *models.User
		userErr     error
		accounts    []models.Account
		accountsErr error
	)

	// Either lookup alone may fail without sinking the flow, so errors are
	// captured per branch instead of propagated through the group.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var u models.User
		if err := r.getJSON(ctx, accessToken, "/user", &u); err != nil {
			userErr = err
			return nil
		}
		user = &u
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Accounts []models.Account `json:"accounts"`
		}
		if err := r.getJSON(ctx, accessToken, "/accounts", &resp); err != nil {
			accountsErr = err
			return nil
		}
		accounts = resp.Accounts
		return nil
	})
	_ = g.Wait()

	if user == nil {
		if accountsErr != nil {
			return Resolution{}, dErrors.Wrap(errors.Join(userErr, accountsErr),
				dErrors.CodeInternal, "identity resolution failed for both user and accounts")
		}
		if len(accounts) == 0 {
			return Resolution{}, dErrors.New(dErrors.CodeInternal, "upstream token resolves neither user nor accounts")
		}
	}

	return Resolution{User: user, Accounts: accounts}, nil
}

func (r *Resolver) getJSON(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: upstream returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// PropsFor types the credential from a resolution per the account-owned
// token rule: no user identity means account_token, never a silent
// downgrade of a user credential.
func PropsFor(res Resolution, token models.UpstreamToken) (models.AuthProps, error) {
	if res.User != nil {
		return models.UserTokenProps{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			User:         *res.User,
			Accounts:     res.Accounts,
		}, nil
	}
	if len(res.Accounts) == 0 {
		return nil, dErrors.New(dErrors.CodeInternal, "cannot type credential without user or accounts")
	}
	return models.AccountTokenProps{
		AccessToken: token.AccessToken,
		Account:     res.Accounts[0],
	}, nil
}
