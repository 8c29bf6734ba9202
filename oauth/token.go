package oauth

import "time"

// TokenState is the delegated Google credential of one session.
type TokenState struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// NewTokenState stamps a freshly issued token pair.
func NewTokenState(access, refresh string, expiresIn int, issued time.Time) TokenState {
	return TokenState{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       issued.Add(time.Duration(expiresIn) * time.Second),
	}
}

// Usable reports whether the access token may still be sent. A token expiring exactly at
// now is expired.
func (t TokenState) Usable(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.Expiry)
}

// Refreshed replaces the access token and keeps the refresh token, which Google does not rotate.
func (t TokenState) Refreshed(access string, expiresIn int, issued time.Time) TokenState {
	return NewTokenState(access, t.RefreshToken, expiresIn, issued)
}
