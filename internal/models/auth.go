package models

import "encoding/json"

// LoginRequest holds credentials for authenticating against the upstream API.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenPair is the persisted half of a Session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both tokens are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Empty reports whether neither token is present.
func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Session is the authenticated state owned by the token manager.
type Session struct {
	TokenPair
	User *UserIdentity `json:"user,omitempty"`
}

// TokenGrant is what the login and refresh endpoints return. RefreshToken is empty when the
// server did not rotate it; User is only present on login.
type TokenGrant struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	User         *UserIdentity `json:"user,omitempty"`
}

// UnmarshalJSON accepts camelCase and snake_case token fields, optionally nested under "tokens".
func (g *TokenGrant) UnmarshalJSON(data []byte) error {
	type tokens struct {
		AccessToken     string `json:"accessToken"`
		AccessTokenAlt  string `json:"access_token"`
		RefreshToken    string `json:"refreshToken"`
		RefreshTokenAlt string `json:"refresh_token"`
	}
	var wire struct {
		tokens
		Tokens *tokens       `json:"tokens"`
		User   *UserIdentity `json:"user"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t := wire.tokens
	if wire.Tokens != nil {
		t = *wire.Tokens
	}
	g.AccessToken = firstNonEmpty(t.AccessToken, t.AccessTokenAlt)
	g.RefreshToken = firstNonEmpty(t.RefreshToken, t.RefreshTokenAlt)
	g.User = wire.User
	return nil
}

// SessionView is the agent's public description of the session. Tokens are never exposed.
type SessionView struct {
	Authenticated bool          `json:"authenticated"`
	Variant       string        `json:"variant"`
	User          *UserIdentity `json:"user,omitempty"`
	Redirect      string        `json:"redirect,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}
