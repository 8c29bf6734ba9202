package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"macrolog"
)

type exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error)
}

// FlowConfig identifies the OAuth client and where Google sends the user back.
type FlowConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
}

// CallbackResult is the outcome of one redirect back from the consent screen.
type CallbackResult struct {
	Token ExchangeResponse
	Err   error
}

// Flow runs one authorization-code-with-PKCE round trip. The state and verifier it hands
// out are single use: they are cleared once a callback arrives, whatever its outcome.
type Flow struct {
	cfg      FlowConfig
	exchange exchanger

	mu       sync.Mutex
	state    string
	verifier string
	last     *CallbackResult
	results  chan CallbackResult
}

func NewFlow(cfg FlowConfig, exchange exchanger) *Flow {
	return &Flow{
		cfg:      cfg,
		exchange: exchange,
		results:  make(chan CallbackResult, 1),
	}
}

// Start records a new state and verifier and returns the consent URL to open.
func (f *Flow) Start() (string, error) {
	pkce := GeneratePKCE()
	state := GenerateState()

	u, err := BuildAuthorizationURL(AuthRequest{
		AuthURL:     f.cfg.AuthURL,
		ClientID:    f.cfg.ClientID,
		RedirectURI: f.cfg.RedirectURI,
		Challenge:   pkce.Challenge,
		State:       state,
	})
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.state = state
	f.verifier = pkce.Verifier
	f.last = nil
	f.mu.Unlock()

	return u, nil
}

// HandleCallback verifies state against the stored value and exchanges the code. A state
// mismatch or a missing verifier fails closed without contacting the proxy.
func (f *Flow) HandleCallback(ctx context.Context, code, state string) (ExchangeResponse, error) {
	if code == "" || state == "" {
		return ExchangeResponse{}, &macrolog.ValidationError{Field: "callback", Message: "missing code or state"}
	}

	f.mu.Lock()
	savedState, verifier := f.state, f.verifier
	f.state, f.verifier = "", ""
	f.mu.Unlock()

	if savedState == "" || state != savedState || verifier == "" {
		slog.Warn("OAUTH: callback state mismatch, refusing exchange")
		return ExchangeResponse{}, &macrolog.AuthError{
			Status:  http.StatusForbidden,
			Message: "OAuth state mismatch, possible CSRF attempt",
		}
	}

	tok, err := f.exchange.Exchange(ctx, ExchangeRequest{
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		Code:         code,
		CodeVerifier: verifier,
		RedirectURI:  f.cfg.RedirectURI,
	})
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

// Results delivers each callback outcome.
func (f *Flow) Results() <-chan CallbackResult {
	return f.results
}

// ServeHTTP handles the redirect target. A request carrying the code is processed once and
// redirected to the bare path, so reloading the page cannot replay the exchange.
func (f *Flow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Has("code") || q.Has("error") {
		var res CallbackResult
		if denied := q.Get("error"); denied != "" {
			f.mu.Lock()
			f.state, f.verifier = "", ""
			f.mu.Unlock()
			res.Err = &macrolog.AuthError{Status: http.StatusUnauthorized, Message: "authorization denied: " + denied}
		} else {
			res.Token, res.Err = f.HandleCallback(r.Context(), q.Get("code"), q.Get("state"))
		}

		f.mu.Lock()
		f.last = &res
		f.mu.Unlock()

		select {
		case f.results <- res:
		default:
		}

		http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
		return
	}

	f.mu.Lock()
	last := f.last
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	switch {
	case last == nil:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "No authorization in progress.")
	case last.Err != nil:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Authorization failed: %v\n", last.Err)
	default:
		fmt.Fprintln(w, "Google Sheets connected. You can close this window.")
	}
}
