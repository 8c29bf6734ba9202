package oauth_test

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"regexp"
	"testing"
	"time"

	"macrolog/oauth"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

var urlSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestGeneratePKCE(t *testing.T) {
	p := oauth.GeneratePKCE()

	should.Len(t, p.Verifier, 43)
	should.Regexp(t, urlSafe, p.Verifier)

	sum := sha256.Sum256([]byte(p.Verifier))
	should.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), p.Challenge)
	should.NotContains(t, p.Challenge, "=")

	should.NotEqual(t, p.Verifier, oauth.GeneratePKCE().Verifier)
}

func TestGenerateState(t *testing.T) {
	s := oauth.GenerateState()
	should.GreaterOrEqual(t, len(s), 32)
	should.Regexp(t, urlSafe, s)
	should.NotEqual(t, s, oauth.GenerateState())
}

func TestBuildAuthorizationURL(t *testing.T) {
	raw, err := oauth.BuildAuthorizationURL(oauth.AuthRequest{
		ClientID:    "client-1",
		RedirectURI: "http://127.0.0.1:8085/callback",
		Challenge:   "challenge-abc",
		State:       "state-xyz",
	})
	must.NoError(t, err)

	u, err := url.Parse(raw)
	must.NoError(t, err)
	should.Equal(t, "accounts.google.com", u.Host)
	should.Equal(t, "/o/oauth2/v2/auth", u.Path)

	q := u.Query()
	should.Equal(t, "client-1", q.Get("client_id"))
	should.Equal(t, "http://127.0.0.1:8085/callback", q.Get("redirect_uri"))
	should.Equal(t, "code", q.Get("response_type"))
	should.Equal(t, "https://www.googleapis.com/auth/spreadsheets", q.Get("scope"))
	should.Equal(t, "challenge-abc", q.Get("code_challenge"))
	should.Equal(t, "S256", q.Get("code_challenge_method"))
	should.Equal(t, "offline", q.Get("access_type"))
	should.Equal(t, "consent", q.Get("prompt"))
	should.Equal(t, "state-xyz", q.Get("state"))
}

func TestBuildAuthorizationURLCustomEndpoint(t *testing.T) {
	raw, err := oauth.BuildAuthorizationURL(oauth.AuthRequest{AuthURL: "http://localhost:9999/auth", ClientID: "c", State: "s"})
	must.NoError(t, err)
	u, err := url.Parse(raw)
	must.NoError(t, err)
	should.Equal(t, "localhost:9999", u.Host)
}

func TestTokenStateUsable(t *testing.T) {
	issued := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	tok := oauth.NewTokenState("access", "refresh", 3600, issued)

	should.True(t, tok.Usable(issued))
	should.True(t, tok.Usable(issued.Add(59*time.Minute)))
	should.False(t, tok.Usable(issued.Add(time.Hour)), "expiry instant counts as expired")
	should.False(t, tok.Usable(issued.Add(2*time.Hour)))
	should.False(t, oauth.TokenState{}.Usable(issued))

	later := issued.Add(2 * time.Hour)
	next := tok.Refreshed("access-2", 1800, later)
	should.Equal(t, "access-2", next.AccessToken)
	should.Equal(t, "refresh", next.RefreshToken)
	should.True(t, next.Usable(later))
	should.Equal(t, later.Add(30*time.Minute), next.Expiry)
}
