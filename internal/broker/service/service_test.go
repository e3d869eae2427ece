package service

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"authgate/internal/broker/cookie"
	"authgate/internal/broker/identity"
	"authgate/internal/broker/models"
	"authgate/internal/broker/provider"
	"authgate/internal/broker/service/mocks"
	"authgate/internal/broker/session"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/audit"
	"authgate/pkg/platform/sentinel"
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	host      *mocks.MockHost
	store     *mocks.MockPendingStore
	exchanger *mocks.MockExchanger
	resolver  *mocks.MockResolver
	approved  *cookie.ApprovedClients
	audit     *audit.MemoryPublisher
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.host = mocks.NewMockHost(s.ctrl)
	s.store = mocks.NewMockPendingStore(s.ctrl)
	s.exchanger = mocks.NewMockExchanger(s.ctrl)
	s.resolver = mocks.NewMockResolver(s.ctrl)

	signer, err := cookie.NewSigner("test-cookie-secret", "approved-clients")
	s.Require().NoError(err)
	s.approved = cookie.NewApprovedClients(signer)
	s.audit = audit.NewMemoryPublisher()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service, err = New(s.host, s.store, s.exchanger, s.resolver, s.approved,
		WithLogger(logger),
		WithAuditPublisher(s.audit),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) authRequest() models.AuthorizationRequest {
	return models.AuthorizationRequest{
		ResponseType:        "code",
		ClientID:            "client-a",
		RedirectURI:         "https://app.example/cb",
		Scope:               []string{"read", "write"},
		State:               "client-state-123",
		CodeChallenge:       "outer-challenge",
		CodeChallengeMethod: "S256",
	}
}

func (s *ServiceSuite) auditActions() []string {
	var actions []string
	for _, e := range s.audit.Events() {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *ServiceSuite) TestNew() {
	s.Run("rejects nil collaborators", func() {
		_, err := New(nil, s.store, s.exchanger, s.resolver, s.approved)
		s.Error(err)
		_, err = New(s.host, nil, s.exchanger, s.resolver, s.approved)
		s.Error(err)
		_, err = New(s.host, s.store, nil, s.resolver, s.approved)
		s.Error(err)
		_, err = New(s.host, s.store, s.exchanger, nil, s.approved)
		s.Error(err)
		_, err = New(s.host, s.store, s.exchanger, s.resolver, nil)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestStartAuthorization() {
	s.Run("unknown client renders the consent dialog", func() {
		req := s.authRequest()
		r := httptest.NewRequest("GET", "/oauth/authorize", nil)
		s.host.EXPECT().ParseAuthRequest(r).Return(req, nil)
		s.host.EXPECT().LookupClient(gomock.Any(), "client-a").
			Return(models.ClientInfo{ClientID: "client-a", ClientName: "Example App"}, nil)

		result, err := s.service.StartAuthorization(context.Background(), r, "")
		s.Require().NoError(err)
		s.Require().NotNil(result.Consent)
		s.Nil(result.Redirect)

		s.NotEmpty(result.Consent.CSRFToken)
		s.Equal("client-a", result.Consent.ClientID)
		html := string(result.Consent.HTML)
		s.Contains(html, "Example App")
		s.Contains(html, result.Consent.CSRFToken)

		encoded, err := EncodeState(req)
		s.Require().NoError(err)
		s.Contains(html, encoded)
		s.Contains(s.auditActions(), "consent_rendered")
	})

	s.Run("approved client skips consent and goes upstream", func() {
		req := s.authRequest()
		cookieValue, err := s.approved.Approve(nil, "client-a")
		s.Require().NoError(err)

		r := httptest.NewRequest("GET", "/oauth/authorize", nil)
		s.host.EXPECT().ParseAuthRequest(r).Return(req, nil)

		var storedToken string
		var stored models.PendingAuthorization
		s.store.EXPECT().
			Put(gomock.Any(), gomock.Any(), gomock.Any(), models.PendingAuthorizationTTL).
			DoAndReturn(func(_ context.Context, token string, record models.PendingAuthorization, _ time.Duration) error {
				storedToken = token
				stored = record
				return nil
			})
		s.exchanger.EXPECT().
			AuthorizeRedirectURL(gomock.Any(), gomock.Any(), "S256", req.Scope).
			Return("https://idp.example/authorize?state=x")

		result, err := s.service.StartAuthorization(context.Background(), r, cookieValue)
		s.Require().NoError(err)
		s.Require().NotNil(result.Redirect)
		s.Nil(result.Consent)

		s.Equal(storedToken, result.Redirect.StateToken)
		s.Equal(session.Bind(storedToken), result.Redirect.SessionBinding)
		s.Equal(req, stored.OAuthReqInfo)
		s.NotEmpty(stored.CodeVerifier)
		s.Contains(s.auditActions(), "consent_skipped")
	})

	s.Run("approval for a different client still requires consent", func() {
		req := s.authRequest()
		cookieValue, err := s.approved.Approve(nil, "someone-else")
		s.Require().NoError(err)

		r := httptest.NewRequest("GET", "/oauth/authorize", nil)
		s.host.EXPECT().ParseAuthRequest(r).Return(req, nil)
		s.host.EXPECT().LookupClient(gomock.Any(), "client-a").
			Return(models.ClientInfo{ClientID: "client-a"}, nil)

		result, err := s.service.StartAuthorization(context.Background(), r, cookieValue)
		s.Require().NoError(err)
		s.NotNil(result.Consent)
	})

	s.Run("tampered approval cookie falls back to consent", func() {
		req := s.authRequest()
		cookieValue, err := s.approved.Approve(nil, "client-a")
		s.Require().NoError(err)
		tampered := "0" + cookieValue[1:]
		if tampered == cookieValue {
			tampered = "f" + cookieValue[1:]
		}

		r := httptest.NewRequest("GET", "/oauth/authorize", nil)
		s.host.EXPECT().ParseAuthRequest(r).Return(req, nil)
		s.host.EXPECT().LookupClient(gomock.Any(), "client-a").
			Return(models.ClientInfo{ClientID: "client-a"}, nil)

		result, err := s.service.StartAuthorization(context.Background(), r, tampered)
		s.Require().NoError(err)
		s.NotNil(result.Consent, "a forged approval list must never skip consent")
		s.Contains(s.auditActions(), "approved_cookie_rejected")
	})

	s.Run("parse failure propagates", func() {
		r := httptest.NewRequest("GET", "/oauth/authorize", nil)
		s.host.EXPECT().ParseAuthRequest(r).
			Return(models.AuthorizationRequest{}, dErrors.New(dErrors.CodeInvalidClient, "unknown client"))

		_, err := s.service.StartAuthorization(context.Background(), r, "")
		s.True(dErrors.Is(err, dErrors.CodeInvalidClient))
	})
}

func (s *ServiceSuite) TestApproveConsent() {
	s.Run("creates the pending record and redirects upstream", func() {
		req := s.authRequest()
		encoded, err := EncodeState(req)
		s.Require().NoError(err)

		var storedToken string
		var stored models.PendingAuthorization
		s.store.EXPECT().
			Put(gomock.Any(), gomock.Any(), gomock.Any(), models.PendingAuthorizationTTL).
			DoAndReturn(func(_ context.Context, token string, record models.PendingAuthorization, _ time.Duration) error {
				storedToken = token
				stored = record
				return nil
			})
		s.exchanger.EXPECT().
			AuthorizeRedirectURL(gomock.Any(), gomock.Any(), "S256", req.Scope).
			DoAndReturn(func(stateToken, challenge, method string, _ []string) string {
				s.NotEmpty(challenge)
				return "https://idp.example/authorize?state=" + stateToken
			})

		redirect, err := s.service.ApproveConsent(context.Background(), ApproveParams{EncodedState: encoded})
		s.Require().NoError(err)

		s.Equal(storedToken, redirect.StateToken)
		s.Equal(session.Bind(storedToken), redirect.SessionBinding)
		s.Equal("client-a", redirect.ClientID)
		s.Contains(redirect.URL, storedToken)
		s.Equal(req, stored.OAuthReqInfo)
		s.Contains(s.auditActions(), "consent_approved")
	})

	s.Run("two approvals never share state or verifier", func() {
		req := s.authRequest()
		encoded, err := EncodeState(req)
		s.Require().NoError(err)

		var tokens []string
		var verifiers []string
		s.store.EXPECT().
			Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, token string, record models.PendingAuthorization, _ time.Duration) error {
				tokens = append(tokens, token)
				verifiers = append(verifiers, record.CodeVerifier)
				return nil
			}).Times(2)
		s.exchanger.EXPECT().
			AuthorizeRedirectURL(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return("https://idp.example/authorize").Times(2)

		_, err = s.service.ApproveConsent(context.Background(), ApproveParams{EncodedState: encoded})
		s.Require().NoError(err)
		_, err = s.service.ApproveConsent(context.Background(), ApproveParams{EncodedState: encoded})
		s.Require().NoError(err)

		s.NotEqual(tokens[0], tokens[1])
		s.NotEqual(verifiers[0], verifiers[1])
	})

	s.Run("garbage state is an invalid request", func() {
		_, err := s.service.ApproveConsent(context.Background(), ApproveParams{EncodedState: "not base64 json"})
		s.True(dErrors.Is(err, dErrors.CodeInvalidRequest))
	})
}

func (s *ServiceSuite) TestDenyConsent() {
	s.Run("redirects back to the client with access_denied", func() {
		encoded, err := EncodeState(s.authRequest())
		s.Require().NoError(err)

		redirect, err := s.service.DenyConsent(context.Background(), ApproveParams{EncodedState: encoded})
		s.Require().NoError(err)

		u, err := url.Parse(redirect)
		s.Require().NoError(err)
		s.Equal("app.example", u.Host)
		s.Equal("access_denied", u.Query().Get("error"))
		s.Equal("client-state-123", u.Query().Get("state"))
		s.Contains(s.auditActions(), "consent_denied")
	})
}

func (s *ServiceSuite) TestCallback() {
	req := s.authRequest()
	record := models.PendingAuthorization{OAuthReqInfo: req, CodeVerifier: strings.Repeat("v", 96)}

	s.Run("user-owned credential completes the flow", func() {
		stateToken := "state-token-user"
		s.store.EXPECT().Consume(gomock.Any(), stateToken).Return(record, nil)
		s.exchanger.EXPECT().
			ExchangeCode(gomock.Any(), "upstream-code", record.CodeVerifier).
			Return(models.UpstreamToken{AccessToken: "at", RefreshToken: "rt"}, nil)
		s.resolver.EXPECT().Resolve(gomock.Any(), "at").Return(identity.Resolution{
			User:     &models.User{ID: "user-1", Email: "u@example.com"},
			Accounts: []models.Account{{ID: "acct-1"}},
		}, nil)
		s.host.EXPECT().
			CompleteAuthorization(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, params provider.CompleteParams) (provider.Completion, error) {
				s.Equal(req, params.Request)
				s.Equal("user-1", params.UserID)
				s.Equal(req.Scope, params.Scope)
				props, ok := params.Props.(models.UserTokenProps)
				s.Require().True(ok)
				s.Equal("at", props.AccessToken)
				s.Equal("rt", props.RefreshToken)
				return provider.Completion{RedirectTo: "https://app.example/cb?code=outer"}, nil
			})

		result, err := s.service.Callback(context.Background(), CallbackParams{
			Code:           "upstream-code",
			StateToken:     stateToken,
			SessionBinding: session.Bind(stateToken),
		})
		s.Require().NoError(err)
		s.Equal("https://app.example/cb?code=outer", result.RedirectTo)
		s.Equal("client-a", result.ClientID)
		s.Contains(s.auditActions(), "flow_completed")
	})

	s.Run("account-owned token yields account props", func() {
		stateToken := "state-token-account"
		s.store.EXPECT().Consume(gomock.Any(), stateToken).Return(record, nil)
		s.exchanger.EXPECT().
			ExchangeCode(gomock.Any(), "upstream-code", record.CodeVerifier).
			Return(models.UpstreamToken{AccessToken: "at"}, nil)
		s.resolver.EXPECT().Resolve(gomock.Any(), "at").Return(identity.Resolution{
			Accounts: []models.Account{{ID: "acct-9", Name: "Acme"}},
		}, nil)
		s.host.EXPECT().
			CompleteAuthorization(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, params provider.CompleteParams) (provider.Completion, error) {
				s.Equal("acct-9", params.UserID)
				props, ok := params.Props.(models.AccountTokenProps)
				s.Require().True(ok)
				s.Equal("acct-9", props.Account.ID)
				return provider.Completion{RedirectTo: "https://app.example/cb?code=outer"}, nil
			})

		_, err := s.service.Callback(context.Background(), CallbackParams{
			Code:           "upstream-code",
			StateToken:     stateToken,
			SessionBinding: session.Bind(stateToken),
		})
		s.NoError(err)
	})

	s.Run("missing binding cookie never touches the store", func() {
		_, err := s.service.Callback(context.Background(), CallbackParams{
			Code:       "upstream-code",
			StateToken: "stolen-token",
		})
		s.True(dErrors.Is(err, dErrors.CodeSecurityViolation))
		s.Contains(s.auditActions(), "session_binding_mismatch")
	})

	s.Run("binding for a different state token is rejected", func() {
		_, err := s.service.Callback(context.Background(), CallbackParams{
			Code:           "upstream-code",
			StateToken:     "token-a",
			SessionBinding: session.Bind("token-b"),
		})
		s.True(dErrors.Is(err, dErrors.CodeSecurityViolation))
	})

	s.Run("consumed or expired state is invalid_grant", func() {
		stateToken := "state-token-replayed"
		s.store.EXPECT().Consume(gomock.Any(), stateToken).
			Return(models.PendingAuthorization{}, sentinel.ErrNotFound)

		_, err := s.service.Callback(context.Background(), CallbackParams{
			Code:           "upstream-code",
			StateToken:     stateToken,
			SessionBinding: session.Bind(stateToken),
		})
		s.True(dErrors.Is(err, dErrors.CodeInvalidGrant))
		s.Contains(s.auditActions(), "state_not_found")
	})

	s.Run("exchange failure aborts after the record is burned", func() {
		stateToken := "state-token-exchange"
		s.store.EXPECT().Consume(gomock.Any(), stateToken).Return(record, nil)
		s.exchanger.EXPECT().
			ExchangeCode(gomock.Any(), "bad-code", record.CodeVerifier).
			Return(models.UpstreamToken{}, dErrors.New(dErrors.CodeInternal, "authorization code exchange failed"))

		_, err := s.service.Callback(context.Background(), CallbackParams{
			Code:           "bad-code",
			StateToken:     stateToken,
			SessionBinding: session.Bind(stateToken),
		})
		s.True(dErrors.Is(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestRefresh() {
	s.Run("refreshes a user credential in place", func() {
		props := models.UserTokenProps{
			AccessToken:  "old-at",
			RefreshToken: "rt-1",
			User:         models.User{ID: "user-1"},
			Accounts:     []models.Account{{ID: "acct-1"}},
		}
		s.exchanger.EXPECT().Refresh(gomock.Any(), "rt-1").
			Return(models.UpstreamToken{AccessToken: "new-at", RefreshToken: "rt-2"}, nil)

		updated, err := s.service.Refresh(context.Background(), props)
		s.Require().NoError(err)
		got, ok := updated.(models.UserTokenProps)
		s.Require().True(ok)
		s.Equal("new-at", got.AccessToken)
		s.Equal("rt-2", got.RefreshToken)
		s.Equal(props.User, got.User)
		s.Equal(props.Accounts, got.Accounts)
	})

	s.Run("keeps the old refresh token when none is rotated in", func() {
		props := models.UserTokenProps{RefreshToken: "rt-1", User: models.User{ID: "user-1"}}
		s.exchanger.EXPECT().Refresh(gomock.Any(), "rt-1").
			Return(models.UpstreamToken{AccessToken: "new-at"}, nil)

		updated, err := s.service.Refresh(context.Background(), props)
		s.Require().NoError(err)
		got := updated.(models.UserTokenProps)
		s.Equal("rt-1", got.RefreshToken)
	})

	s.Run("account credentials cannot be refreshed", func() {
		_, err := s.service.Refresh(context.Background(), models.AccountTokenProps{
			AccessToken: "at",
			Account:     models.Account{ID: "acct-1"},
		})
		s.True(dErrors.Is(err, dErrors.CodeInternal))
	})
}

func TestStateRoundTrip(t *testing.T) {
	req := models.AuthorizationRequest{
		ResponseType: "code",
		ClientID:     "client-a",
		RedirectURI:  "https://app.example/cb",
		Scope:        []string{"read"},
		State:        "xyz",
	}
	encoded, err := EncodeState(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeState(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ClientID != req.ClientID || decoded.RedirectURI != req.RedirectURI || decoded.State != req.State {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}

	if _, err := DecodeState("e30"); err == nil {
		t.Fatal("expected incomplete state to be rejected")
	}
}
