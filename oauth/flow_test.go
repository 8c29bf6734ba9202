package oauth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"macrolog"
	"macrolog/oauth"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	calls []oauth.ExchangeRequest
	resp  oauth.ExchangeResponse
	err   error
}

func (f *fakeExchanger) Exchange(_ context.Context, req oauth.ExchangeRequest) (oauth.ExchangeResponse, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func startFlow(t *testing.T, ex *fakeExchanger) (*oauth.Flow, string) {
	t.Helper()
	flow := oauth.NewFlow(oauth.FlowConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:8085/callback",
	}, ex)
	raw, err := flow.Start()
	must.NoError(t, err)
	u, err := url.Parse(raw)
	must.NoError(t, err)
	return flow, u.Query().Get("state")
}

func TestFlowHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("matching state exchanges with stored verifier", func(t *testing.T) {
		ex := &fakeExchanger{resp: oauth.ExchangeResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600}}
		flow, state := startFlow(t, ex)

		tok, err := flow.HandleCallback(ctx, "code-1", state)
		must.NoError(t, err)
		should.Equal(t, "a", tok.AccessToken)

		must.Len(t, ex.calls, 1)
		should.Equal(t, "code-1", ex.calls[0].Code)
		should.Len(t, ex.calls[0].CodeVerifier, 43)
		should.Equal(t, "secret", ex.calls[0].ClientSecret)
		should.Equal(t, "http://127.0.0.1:8085/callback", ex.calls[0].RedirectURI)

		// stored values are cleared, so the same callback cannot be replayed
		_, err = flow.HandleCallback(ctx, "code-1", state)
		should.True(t, macrolog.IsAuthError(err))
		should.Len(t, ex.calls, 1)
	})

	t.Run("state mismatch fails closed", func(t *testing.T) {
		ex := &fakeExchanger{}
		flow, state := startFlow(t, ex)

		_, err := flow.HandleCallback(ctx, "code", "forged")
		should.True(t, macrolog.IsAuthError(err))
		should.Empty(t, ex.calls)

		// the genuine state no longer works either
		_, err = flow.HandleCallback(ctx, "code", state)
		should.True(t, macrolog.IsAuthError(err))
		should.Empty(t, ex.calls)
	})

	t.Run("no flow started", func(t *testing.T) {
		ex := &fakeExchanger{}
		flow := oauth.NewFlow(oauth.FlowConfig{}, ex)
		_, err := flow.HandleCallback(ctx, "code", "state")
		should.True(t, macrolog.IsAuthError(err))
		should.Empty(t, ex.calls)
	})

	t.Run("missing parameters", func(t *testing.T) {
		ex := &fakeExchanger{}
		flow, _ := startFlow(t, ex)
		_, err := flow.HandleCallback(ctx, "", "")
		var ve *macrolog.ValidationError
		should.ErrorAs(t, err, &ve)
	})

	t.Run("exchange failure is propagated", func(t *testing.T) {
		ex := &fakeExchanger{err: &macrolog.AuthError{Status: 401, Message: "invalid_grant"}}
		flow, state := startFlow(t, ex)
		_, err := flow.HandleCallback(ctx, "code", state)
		should.True(t, macrolog.IsAuthError(err))
		should.Len(t, ex.calls, 1)
	})
}

func TestFlowServeHTTP(t *testing.T) {
	t.Run("callback redirects to bare path and reports result", func(t *testing.T) {
		ex := &fakeExchanger{resp: oauth.ExchangeResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600}}
		flow, state := startFlow(t, ex)

		rec := httptest.NewRecorder()
		flow.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=c&state="+url.QueryEscape(state), nil))
		should.Equal(t, http.StatusSeeOther, rec.Code)
		should.Equal(t, "/callback", rec.Header().Get("Location"))

		select {
		case res := <-flow.Results():
			must.NoError(t, res.Err)
			should.Equal(t, "r", res.Token.RefreshToken)
		default:
			t.Fatal("expected a callback result")
		}

		rec = httptest.NewRecorder()
		flow.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))
		should.Equal(t, http.StatusOK, rec.Code)
		should.Contains(t, rec.Body.String(), "connected")
		should.Len(t, ex.calls, 1)
	})

	t.Run("denied consent", func(t *testing.T) {
		ex := &fakeExchanger{}
		flow, _ := startFlow(t, ex)

		rec := httptest.NewRecorder()
		flow.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil))
		should.Equal(t, http.StatusSeeOther, rec.Code)

		res := <-flow.Results()
		should.Error(t, res.Err)
		should.Empty(t, ex.calls)

		rec = httptest.NewRecorder()
		flow.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))
		should.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bare path before any callback", func(t *testing.T) {
		flow := oauth.NewFlow(oauth.FlowConfig{}, &fakeExchanger{err: errors.New("unused")})
		rec := httptest.NewRecorder()
		flow.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))
		should.Equal(t, http.StatusNotFound, rec.Code)
	})
}
