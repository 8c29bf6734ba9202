package oauth

import (
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
	gsheet "google.golang.org/api/sheets/v4"
)

const DefaultAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"

// PKCE is a verifier and its S256 challenge.
type PKCE struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE returns a fresh 43-character verifier and its challenge.
func GeneratePKCE() PKCE {
	v := oauth2.GenerateVerifier()
	return PKCE{Verifier: v, Challenge: oauth2.S256ChallengeFromVerifier(v)}
}

// GenerateState returns a 43-character URL-safe random string binding a redirect to its callback.
func GenerateState() string {
	return oauth2.GenerateVerifier()
}

// AuthRequest holds the caller-supplied parts of an authorization URL. AuthURL defaults to
// Google's endpoint.
type AuthRequest struct {
	AuthURL     string
	ClientID    string
	RedirectURI string
	Challenge   string
	State       string
}

// BuildAuthorizationURL returns the consent URL for offline spreadsheets access. prompt=consent
// makes Google issue a refresh token on every connection.
func BuildAuthorizationURL(req AuthRequest) (string, error) {
	authURL := req.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	if _, err := url.Parse(authURL); err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	cfg := oauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURI,
		Scopes:      []string{gsheet.SpreadsheetsScope},
		Endpoint:    oauth2.Endpoint{AuthURL: authURL},
	}

	return cfg.AuthCodeURL(req.State,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", req.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}
