package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	"github.com/noah-isme/sma-adp-portal/internal/repository"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
)

type fakeAuthClient struct {
	grant *models.TokenGrant
	err   error
	calls int
}

func (f *fakeAuthClient) Login(ctx context.Context, req models.LoginRequest) (*models.TokenGrant, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	grant := *f.grant
	return &grant, nil
}

type fakeAccountClient struct {
	user        *models.UserIdentity
	meErr       error
	logoutErr   error
	meCalls     int
	logoutCalls []string
}

func (f *fakeAccountClient) Me(ctx context.Context) (*models.UserIdentity, error) {
	f.meCalls++
	if f.meErr != nil {
		return nil, f.meErr
	}
	user := *f.user
	return &user, nil
}

func (f *fakeAccountClient) Logout(ctx context.Context, pair models.TokenPair) error {
	f.logoutCalls = append(f.logoutCalls, pair.RefreshToken)
	return f.logoutErr
}

type fakeCache struct {
	mu      sync.Mutex
	loads   []string
	loadErr error
	resets  int
}

func (f *fakeCache) LoadEnrollments(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, studentID)
	return nil, f.loadErr
}

func (f *fakeCache) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

type sessionFixture struct {
	service  *SessionService
	tokens   *TokenManager
	store    *repository.MemoryTokenStore
	auth     *fakeAuthClient
	account  *fakeAccountClient
	cache    *fakeCache
	redirect *LoginRedirect
}

func newSessionFixture(t *testing.T, refresher *fakeRefresher) *sessionFixture {
	t.Helper()
	tokens, store := newTestTokenManager(t, refresher)
	f := &sessionFixture{
		tokens: tokens,
		store:  store,
		auth: &fakeAuthClient{grant: &models.TokenGrant{
			AccessToken:  signedToken(t, "s1", testNow.Add(time.Hour)),
			RefreshToken: "r1",
			User:         &models.UserIdentity{ID: "s1", Username: "ana", Role: models.RoleStudent},
		}},
		account:  &fakeAccountClient{user: &models.UserIdentity{ID: "s1", Username: "ana", Role: models.RoleStudent}},
		cache:    &fakeCache{},
		redirect: NewLoginRedirect(nil),
	}
	f.service = NewSessionService(f.auth, f.account, tokens, f.cache, f.redirect, nil, nil)
	return f
}

func TestLoginValidatesInput(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})
	_, err := f.service.Login(context.Background(), models.LoginRequest{Username: "ana"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, f.auth.calls)
}

func TestLoginEstablishesSessionAndLoadsEnrollments(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})

	session, err := f.service.Login(context.Background(), models.LoginRequest{Username: "ana", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "s1", session.User.ID)
	assert.Equal(t, []string{"s1"}, f.cache.loads)

	pair, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r1", pair.RefreshToken)
}

func TestLoginSurvivesInitialLoadFailure(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})
	f.cache.loadErr = appErrors.ErrNetwork

	_, err := f.service.Login(context.Background(), models.LoginRequest{Username: "ana", Password: "secret"})
	require.NoError(t, err)
	_, ok := f.service.Current()
	assert.True(t, ok)
}

func TestLoginFetchesProfileWhenGrantHasNoUser(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})
	f.auth.grant.User = nil

	session, err := f.service.Login(context.Background(), models.LoginRequest{Username: "ana", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.account.meCalls)
	require.NotNil(t, session.User)
	assert.Equal(t, "s1", session.User.ID)
}

func TestLoginPropagatesUpstreamError(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})
	f.auth.err = appErrors.FromStatus(401, "Invalid username or password")

	_, err := f.service.Login(context.Background(), models.LoginRequest{Username: "ana", Password: "bad"})
	assert.EqualError(t, err, "Invalid username or password")
	_, ok := f.service.Current()
	assert.False(t, ok)
}

func TestBootstrapWithoutTokensMakesNoCalls(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})

	active, err := f.service.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.False(t, active)
	assert.Zero(t, f.account.meCalls)
}

func TestBootstrapRestoresUser(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})
	require.NoError(t, f.store.Save(context.Background(), models.TokenPair{AccessToken: "a", RefreshToken: "r"}))

	active, err := f.service.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.True(t, active)

	session, ok := f.service.Current()
	require.True(t, ok)
	assert.Equal(t, "ana", session.User.Username)
	assert.Equal(t, []string{"s1"}, f.cache.loads)
}

func TestBootstrapTreatsTerminatedAsSignedOut(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})
	require.NoError(t, f.store.Save(context.Background(), models.TokenPair{AccessToken: "a", RefreshToken: "r"}))
	f.account.meErr = appErrors.ErrSessionTerminated

	active, err := f.service.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLogoutIgnoresUpstreamFailure(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})
	_, err := f.service.Login(context.Background(), models.LoginRequest{Username: "ana", Password: "secret"})
	require.NoError(t, err)
	f.account.logoutErr = appErrors.ErrNetwork
	resetsBefore := f.cache.resets

	require.NoError(t, f.service.Logout(context.Background()))
	assert.Equal(t, []string{"r1"}, f.account.logoutCalls)
	assert.Equal(t, resetsBefore+1, f.cache.resets)
	_, ok := f.service.Current()
	assert.False(t, ok)
	_, _, pending := f.redirect.Consume()
	assert.False(t, pending)
}

func TestTerminationResetsCacheAndRedirects(t *testing.T) {
	f := newSessionFixture(t, &fakeRefresher{})
	_, err := f.service.Login(context.Background(), models.LoginRequest{Username: "ana", Password: "secret"})
	require.NoError(t, err)
	resetsBefore := f.cache.resets

	f.tokens.Terminate(context.Background(), appErrors.Clone(appErrors.ErrSessionTerminated, "refresh token revoked"))

	assert.Equal(t, resetsBefore+1, f.cache.resets)
	reason, at, ok := f.redirect.Consume()
	require.True(t, ok)
	assert.Equal(t, "refresh token revoked", reason)
	assert.False(t, at.IsZero())

	_, _, ok = f.redirect.Consume()
	assert.False(t, ok)
}
