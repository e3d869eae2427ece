package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"authgate/internal/broker/cookie"
	"authgate/internal/broker/handler/mocks"
	"authgate/internal/broker/models"
	"authgate/internal/broker/provider"
	"authgate/internal/broker/service"
	dErrors "authgate/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	broker    *mocks.MockBroker
	registrar *mocks.MockRegistrar
	issuer    *mocks.MockIssuer
	approved  *cookie.ApprovedClients
	router    chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.broker = mocks.NewMockBroker(s.ctrl)
	s.registrar = mocks.NewMockRegistrar(s.ctrl)
	s.issuer = mocks.NewMockIssuer(s.ctrl)

	signer, err := cookie.NewSigner("test-cookie-secret", "approved-clients")
	s.Require().NoError(err)
	s.approved = cookie.NewApprovedClients(signer)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.broker, s.registrar, s.issuer, s.approved, logger, nil, Options{})
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(req *http.Request) *http.Response {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec.Result()
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *HandlerSuite) TestAuthorize() {
	s.Run("renders consent with a csrf cookie", func() {
		s.broker.EXPECT().
			StartAuthorization(gomock.Any(), gomock.Any(), "").
			Return(service.StartResult{Consent: &service.ConsentPage{
				HTML:      []byte("<html>consent</html>"),
				CSRFToken: "csrf-123",
				ClientID:  "client-a",
			}}, nil)

		resp := s.do(httptest.NewRequest("GET", "/oauth/authorize?client_id=client-a", nil))
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Contains(resp.Header.Get("Content-Type"), "text/html")

		c := findCookie(resp, csrfCookieName)
		s.Require().NotNil(c)
		s.Equal("csrf-123", c.Value)
		s.True(c.HttpOnly)
	})

	s.Run("approved client is redirected upstream with a binding cookie", func() {
		s.broker.EXPECT().
			StartAuthorization(gomock.Any(), gomock.Any(), "signed-approvals").
			Return(service.StartResult{Redirect: &service.FlowRedirect{
				URL:            "https://idp.example/authorize?state=tok",
				StateToken:     "tok",
				SessionBinding: "binding-hash",
				ClientID:       "client-a",
			}}, nil)

		req := httptest.NewRequest("GET", "/oauth/authorize?client_id=client-a", nil)
		req.AddCookie(&http.Cookie{Name: approvedCookieName, Value: "signed-approvals"})

		resp := s.do(req)
		s.Equal(http.StatusFound, resp.StatusCode)
		s.Equal("https://idp.example/authorize?state=tok", resp.Header.Get("Location"))

		c := findCookie(resp, sessionCookieName)
		s.Require().NotNil(c)
		s.Equal("binding-hash", c.Value)
	})

	s.Run("broker error becomes an oauth error body", func() {
		s.broker.EXPECT().
			StartAuthorization(gomock.Any(), gomock.Any(), "").
			Return(service.StartResult{}, dErrors.New(dErrors.CodeInvalidClient, "unknown client"))

		resp := s.do(httptest.NewRequest("GET", "/oauth/authorize", nil))
		s.Equal(http.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"invalid_client"`)
		s.Contains(string(body), "unknown client")
	})
}

func (s *HandlerSuite) consentForm(csrf, state, decision string) *http.Request {
	form := url.Values{}
	form.Set("csrf_token", csrf)
	form.Set("state", state)
	form.Set("decision", decision)
	req := httptest.NewRequest("POST", "/oauth/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (s *HandlerSuite) TestConsentDecision() {
	s.Run("approve sets binding and approval cookies and redirects", func() {
		s.broker.EXPECT().
			ApproveConsent(gomock.Any(), service.ApproveParams{EncodedState: "encoded-state", Device: "Unknown Device"}).
			Return(service.FlowRedirect{
				URL:            "https://idp.example/authorize?state=tok",
				StateToken:     "tok",
				SessionBinding: "binding-hash",
				ClientID:       "client-a",
			}, nil)

		req := s.consentForm("csrf-123", "encoded-state", "approve")
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf-123"})

		resp := s.do(req)
		s.Equal(http.StatusFound, resp.StatusCode)
		s.Equal("https://idp.example/authorize?state=tok", resp.Header.Get("Location"))

		binding := findCookie(resp, sessionCookieName)
		s.Require().NotNil(binding)
		s.Equal("binding-hash", binding.Value)

		approvedCookie := findCookie(resp, approvedCookieName)
		s.Require().NotNil(approvedCookie)
		ids, err := s.approved.Decode(approvedCookie.Value)
		s.Require().NoError(err)
		s.Contains(ids, "client-a")

		csrf := findCookie(resp, csrfCookieName)
		s.Require().NotNil(csrf)
		s.Negative(csrf.MaxAge, "csrf cookie must be cleared after use")
	})

	s.Run("deny redirects back to the client", func() {
		s.broker.EXPECT().
			DenyConsent(gomock.Any(), gomock.Any()).
			Return("https://app.example/cb?error=access_denied", nil)

		req := s.consentForm("csrf-123", "encoded-state", "deny")
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf-123"})

		resp := s.do(req)
		s.Equal(http.StatusFound, resp.StatusCode)
		s.Equal("https://app.example/cb?error=access_denied", resp.Header.Get("Location"))
	})

	s.Run("missing csrf cookie rejects without reaching the broker", func() {
		resp := s.do(s.consentForm("csrf-123", "encoded-state", "approve"))
		s.Equal(http.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"invalid_request"`)
	})

	s.Run("mismatched csrf pair rejects generically", func() {
		req := s.consentForm("csrf-123", "encoded-state", "approve")
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "other-token"})

		resp := s.do(req)
		s.Equal(http.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"access_denied"`)
		s.NotContains(string(body), "csrf", "body must not reveal which check failed")
	})
}

func (s *HandlerSuite) TestCallback() {
	s.Run("completes the flow and clears the binding cookie", func() {
		s.broker.EXPECT().
			Callback(gomock.Any(), service.CallbackParams{
				Code:           "upstream-code",
				StateToken:     "tok",
				SessionBinding: "binding-hash",
				Device:         "Unknown Device",
			}).
			Return(service.CallbackResult{RedirectTo: "https://app.example/cb?code=outer", ClientID: "client-a"}, nil)

		req := httptest.NewRequest("GET", "/oauth/callback?code=upstream-code&state=tok", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "binding-hash"})

		resp := s.do(req)
		s.Equal(http.StatusFound, resp.StatusCode)
		s.Equal("https://app.example/cb?code=outer", resp.Header.Get("Location"))

		c := findCookie(resp, sessionCookieName)
		s.Require().NotNil(c)
		s.Negative(c.MaxAge)
	})

	s.Run("missing binding cookie still reaches the broker and fails there", func() {
		s.broker.EXPECT().
			Callback(gomock.Any(), service.CallbackParams{
				Code:       "upstream-code",
				StateToken: "tok",
				Device:     "Unknown Device",
			}).
			Return(service.CallbackResult{}, dErrors.New(dErrors.CodeSecurityViolation, "authorization state does not belong to this browser"))

		resp := s.do(httptest.NewRequest("GET", "/oauth/callback?code=upstream-code&state=tok", nil))
		s.Equal(http.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"access_denied"`)
		s.NotContains(string(body), "browser")
	})

	s.Run("upstream error parameter short-circuits", func() {
		resp := s.do(httptest.NewRequest("GET", "/oauth/callback?error=access_denied&error_description=nope", nil))
		s.Equal(http.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"access_denied"`)
	})
}

func (s *HandlerSuite) TestSecureCookieNames() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.broker, s.registrar, s.issuer, s.approved, logger, nil, Options{SecureCookies: true})
	router := chi.NewRouter()
	h.Register(router)

	s.broker.EXPECT().
		StartAuthorization(gomock.Any(), gomock.Any(), "").
		Return(service.StartResult{Consent: &service.ConsentPage{
			HTML:      []byte("<html></html>"),
			CSRFToken: "csrf-123",
			ClientID:  "client-a",
		}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/oauth/authorize?client_id=client-a", nil))
	resp := rec.Result()

	c := findCookie(resp, "__Host-"+csrfCookieName)
	s.Require().NotNil(c)
	s.True(c.Secure)
}

func (s *HandlerSuite) tokenForm(values url.Values) *http.Request {
	req := httptest.NewRequest("POST", "/oauth/token", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (s *HandlerSuite) TestToken() {
	s.Run("authorization_code with form credentials", func() {
		s.issuer.EXPECT().
			Exchange(gomock.Any(), "client-a", "secret-a", "outer-code").
			Return(provider.TokenResponse{
				AccessToken:  "outer-access",
				TokenType:    "Bearer",
				ExpiresIn:    3600,
				RefreshToken: "outer-refresh",
				Scope:        "account:read",
			}, nil)

		resp := s.do(s.tokenForm(url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {"outer-code"},
			"client_id":     {"client-a"},
			"client_secret": {"secret-a"},
		}))
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal("no-store", resp.Header.Get("Cache-Control"))

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"outer-access"`)
		s.Contains(string(body), `"outer-refresh"`)
		s.Contains(string(body), `"Bearer"`)
	})

	s.Run("basic auth credentials reach the issuer", func() {
		s.issuer.EXPECT().
			Exchange(gomock.Any(), "client-a", "secret-a", "outer-code").
			Return(provider.TokenResponse{AccessToken: "outer-access", TokenType: "Bearer", ExpiresIn: 3600}, nil)

		req := s.tokenForm(url.Values{
			"grant_type": {"authorization_code"},
			"code":       {"outer-code"},
		})
		req.SetBasicAuth("client-a", "secret-a")

		resp := s.do(req)
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("refresh_token grant", func() {
		s.issuer.EXPECT().
			RefreshToken(gomock.Any(), "client-a", "secret-a", "outer-refresh").
			Return(provider.TokenResponse{AccessToken: "next-access", TokenType: "Bearer", ExpiresIn: 3600, RefreshToken: "next-refresh"}, nil)

		resp := s.do(s.tokenForm(url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {"outer-refresh"},
			"client_id":     {"client-a"},
			"client_secret": {"secret-a"},
		}))
		s.Equal(http.StatusOK, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"next-access"`)
		s.Contains(string(body), `"next-refresh"`)
	})

	s.Run("unsupported grant_type rejects without reaching the issuer", func() {
		resp := s.do(s.tokenForm(url.Values{
			"grant_type": {"password"},
			"client_id":  {"client-a"},
		}))
		s.Equal(http.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"invalid_request"`)
	})

	s.Run("missing client credentials reject", func() {
		resp := s.do(s.tokenForm(url.Values{
			"grant_type": {"authorization_code"},
			"code":       {"outer-code"},
		}))
		s.Equal(http.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"invalid_client"`)
	})

	s.Run("issuer rejection becomes an oauth error body", func() {
		s.issuer.EXPECT().
			Exchange(gomock.Any(), "client-a", "wrong", "outer-code").
			Return(provider.TokenResponse{}, dErrors.New(dErrors.CodeInvalidClient, "client authentication failed"))

		resp := s.do(s.tokenForm(url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {"outer-code"},
			"client_id":     {"client-a"},
			"client_secret": {"wrong"},
		}))
		s.Equal(http.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		s.Contains(string(body), `"invalid_client"`)
	})
}

func (s *HandlerSuite) TestRegister() {
	s.Run("registers a client", func() {
		s.registrar.EXPECT().
			CreateClient(gomock.Any(), models.ClientInfo{
				ClientName:   "Example App",
				RedirectURIs: []string{"https://app.example/cb"},
			}).
			Return(models.ClientInfo{
				ClientID:     "client-a",
				ClientSecret: "one-time-secret",
				ClientName:   "Example App",
				RedirectURIs: []string{"https://app.example/cb"},
			}, nil)

		body := `{"client_name":"Example App","redirect_uris":["https://app.example/cb"]}`
		req := httptest.NewRequest("POST", "/oauth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp := s.do(req)
		s.Equal(http.StatusCreated, resp.StatusCode)

		payload, _ := io.ReadAll(resp.Body)
		s.Contains(string(payload), `"client-a"`)
		s.Contains(string(payload), `"client_secret":"one-time-secret"`)
	})

	s.Run("rejects malformed registration body", func() {
		req := httptest.NewRequest("POST", "/oauth/register", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")

		resp := s.do(req)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}
