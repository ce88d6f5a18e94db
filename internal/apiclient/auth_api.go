package apiclient

import (
	"context"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
)

// AuthAPI performs the public credential exchanges. Calls never carry a token and never trigger a refresh.
type AuthAPI struct {
	transport *Transport
	endpoints Endpoints
}

// NewAuthAPI constructs an AuthAPI.
func NewAuthAPI(transport *Transport, endpoints Endpoints) *AuthAPI {
	return &AuthAPI{transport: transport, endpoints: endpoints}
}

// Login exchanges credentials for a token pair and the user identity.
func (a *AuthAPI) Login(ctx context.Context, req models.LoginRequest) (*models.TokenGrant, error) {
	call := NewRequest(a.endpoints.Login, nil)
	call.Body = req

	env, err := a.transport.Send(ctx, call, "")
	if err != nil {
		return nil, err
	}
	var grant models.TokenGrant
	if err := decodeInto(env, &grant); err != nil {
		return nil, err
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		return nil, appErrors.Clone(appErrors.ErrDecode, "login response is missing tokens")
	}
	return &grant, nil
}

// Refresh exchanges the refresh token for a new access token. RefreshToken on the result is set
// only when the server rotated it.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*models.TokenGrant, error) {
	call := NewRequest(a.endpoints.Refresh, nil)
	call.Body = models.RefreshTokenRequest{RefreshToken: refreshToken}

	env, err := a.transport.Send(ctx, call, "")
	if err != nil {
		return nil, err
	}
	var grant models.TokenGrant
	if err := decodeInto(env, &grant); err != nil {
		return nil, err
	}
	if grant.AccessToken == "" {
		return nil, appErrors.Clone(appErrors.ErrDecode, "refresh response is missing the access token")
	}
	return &grant, nil
}

// AccountAPI covers the authenticated account calls.
type AccountAPI struct {
	pipeline  *Pipeline
	endpoints Endpoints
}

// NewAccountAPI constructs an AccountAPI.
func NewAccountAPI(pipeline *Pipeline, endpoints Endpoints) *AccountAPI {
	return &AccountAPI{pipeline: pipeline, endpoints: endpoints}
}

// Me fetches the identity behind the current token. The payload is either the user or {user}.
func (a *AccountAPI) Me(ctx context.Context) (*models.UserIdentity, error) {
	env, err := a.pipeline.Do(ctx, NewRequest(a.endpoints.Me, nil), nil)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		User *models.UserIdentity `json:"user"`
	}
	if err := decodeInto(env, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.User != nil {
		return wrapped.User, nil
	}
	var user models.UserIdentity
	if err := decodeInto(env, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrDecode, "profile response is missing the user")
	}
	return &user, nil
}

// Logout revokes the refresh token server side with the session's current access token. An
// expired token is sent as is: logging out never triggers a refresh.
func (a *AccountAPI) Logout(ctx context.Context, pair models.TokenPair) error {
	call := NewRequest(a.endpoints.Logout, nil)
	call.Body = models.RefreshTokenRequest{RefreshToken: pair.RefreshToken}
	_, err := a.pipeline.SendOnce(ctx, call, pair.AccessToken)
	return err
}
