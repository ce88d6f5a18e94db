package service

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
)

const (
	refreshFlightKey  = "refresh"
	defaultExpirySkew = 10 * time.Second
)

// Refresh outcomes reported to the RefreshObserver.
const (
	RefreshSucceeded = "succeeded"
	RefreshFailed    = "failed"
	RefreshReused    = "reused"
)

// TokenStore persists the token pair across restarts.
type TokenStore interface {
	Load(ctx context.Context) (models.TokenPair, error)
	Save(ctx context.Context, pair models.TokenPair) error
	Clear(ctx context.Context) error
}

type tokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenGrant, error)
}

// RefreshObserver counts refresh attempts by outcome.
type RefreshObserver interface {
	RecordRefresh(outcome string)
}

// TerminationHook runs after the session has been cleared involuntarily.
type TerminationHook func(ctx context.Context, reason error)

// TokenManagerOption customises a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithTokenClock overrides the clock used for expiry checks.
func WithTokenClock(clock func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithExpirySkew treats tokens as expired this long before their exp claim.
func WithExpirySkew(skew time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if skew >= 0 {
			m.skew = skew
		}
	}
}

// WithRefreshObserver records refresh outcomes.
func WithRefreshObserver(observer RefreshObserver) TokenManagerOption {
	return func(m *TokenManager) {
		m.observer = observer
	}
}

// WithTerminationHook registers a hook fired when the session is terminated.
func WithTerminationHook(hook TerminationHook) TokenManagerOption {
	return func(m *TokenManager) {
		if hook != nil {
			m.hooks = append(m.hooks, hook)
		}
	}
}

// TokenManager owns the session and guarantees at most one refresh call is in flight. Callers that
// find the access token expired while a refresh is running share its result.
type TokenManager struct {
	store     TokenStore
	refresher tokenRefresher
	logger    *zap.Logger
	observer  RefreshObserver
	clock     func() time.Time
	skew      time.Duration
	parser    *jwt.Parser

	mu         sync.RWMutex
	session    *models.Session
	generation uint64

	// storeMu orders writes to the store; a save is skipped once its generation is stale.
	storeMu sync.Mutex

	flights singleflight.Group

	hookMu sync.RWMutex
	hooks  []TerminationHook
}

// NewTokenManager constructs a TokenManager with no session.
func NewTokenManager(store TokenStore, refresher tokenRefresher, logger *zap.Logger, opts ...TokenManagerOption) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &TokenManager{
		store:     store,
		refresher: refresher,
		logger:    logger,
		clock:     time.Now,
		skew:      defaultExpirySkew,
		parser:    jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnTerminated registers an additional termination hook.
func (m *TokenManager) OnTerminated(hook TerminationHook) {
	if hook == nil {
		return
	}
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Rehydrate loads a persisted token pair. It reports whether a session was restored.
func (m *TokenManager) Rehydrate(ctx context.Context) (bool, error) {
	pair, err := m.store.Load(ctx)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stored tokens")
	}
	if !pair.Complete() {
		return false, nil
	}

	m.mu.Lock()
	m.session = &models.Session{TokenPair: pair}
	m.generation++
	m.mu.Unlock()
	return true, nil
}

// Establish installs a freshly issued session and persists its tokens.
func (m *TokenManager) Establish(ctx context.Context, session models.Session) error {
	if !session.Complete() {
		return appErrors.Clone(appErrors.ErrValidation, "session requires both access and refresh tokens")
	}

	m.mu.Lock()
	s := session
	m.session = &s
	m.generation++
	generation := m.generation
	m.mu.Unlock()

	if err := m.persist(ctx, generation, session.TokenPair); err != nil {
		m.logger.Warn("failed to persist tokens, session kept in memory", zap.Error(err))
	}
	return nil
}

// SetUser attaches the identity to the current session.
func (m *TokenManager) SetUser(user *models.UserIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.User = user
	}
}

// Current returns a copy of the session.
func (m *TokenManager) Current() (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return models.Session{}, false
	}
	s := *m.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s, true
}

// EnsureValidToken returns a non-expired access token, refreshing when needed.
func (m *TokenManager) EnsureValidToken(ctx context.Context) (string, error) {
	session, ok := m.Current()
	if !ok {
		return "", appErrors.Clone(appErrors.ErrSessionTerminated, "no active session")
	}
	if !m.Expired(session.AccessToken) {
		return session.AccessToken, nil
	}
	return m.refresh(ctx, session.AccessToken)
}

// RenewAfterUnauthorized refreshes after the server rejected staleToken, regardless of its exp claim.
func (m *TokenManager) RenewAfterUnauthorized(ctx context.Context, staleToken string) (string, error) {
	if _, ok := m.Current(); !ok {
		return "", appErrors.Clone(appErrors.ErrSessionTerminated, "no active session")
	}
	return m.refresh(ctx, staleToken)
}

// Terminate clears the session and fires the termination hooks.
func (m *TokenManager) Terminate(ctx context.Context, reason error) {
	m.terminate(ctx, reason)
}

// Clear ends the session without firing the termination hooks.
func (m *TokenManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.generation++
	m.mu.Unlock()

	if err := m.wipe(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear stored tokens")
	}
	return nil
}

// Expired reports whether the token's exp claim is within the skew window. Undecodable tokens are
// expired; tokens without exp are not.
func (m *TokenManager) Expired(token string) bool {
	if token == "" {
		return true
	}
	var claims jwt.RegisteredClaims
	if _, _, err := m.parser.ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !m.clock().Add(m.skew).Before(claims.ExpiresAt.Time)
}

func (m *TokenManager) refresh(ctx context.Context, staleToken string) (string, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(refreshFlightKey, func() (interface{}, error) {
		return m.runRefresh(flightCtx, staleToken)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *TokenManager) runRefresh(ctx context.Context, staleToken string) (string, error) {
	m.mu.RLock()
	if m.session == nil {
		m.mu.RUnlock()
		return "", appErrors.Clone(appErrors.ErrSessionTerminated, "no active session")
	}
	current := m.session.TokenPair
	generation := m.generation
	m.mu.RUnlock()

	// Another flight already replaced the rejected token.
	if current.AccessToken != staleToken && !m.Expired(current.AccessToken) {
		m.record(RefreshReused)
		return current.AccessToken, nil
	}

	grant, err := m.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		m.record(RefreshFailed)
		m.logger.Warn("token refresh failed, terminating session", zap.Error(err))
		reason := appErrors.Wrap(err, appErrors.ErrSessionTerminated.Code, appErrors.ErrSessionTerminated.Status, appErrors.ErrSessionTerminated.Message)
		m.terminate(ctx, reason)
		return "", reason
	}

	next := models.TokenPair{AccessToken: grant.AccessToken, RefreshToken: current.RefreshToken}
	if grant.RefreshToken != "" {
		next.RefreshToken = grant.RefreshToken
	}

	m.mu.Lock()
	if m.session == nil || m.generation != generation {
		var token string
		if m.session != nil {
			token = m.session.AccessToken
		}
		m.mu.Unlock()
		if token == "" {
			return "", appErrors.Clone(appErrors.ErrSessionTerminated, "session ended during refresh")
		}
		return token, nil
	}
	m.session.TokenPair = next
	m.mu.Unlock()

	if err := m.persist(ctx, generation, next); err != nil {
		m.logger.Warn("failed to persist refreshed tokens", zap.Error(err))
	}
	m.record(RefreshSucceeded)
	m.logger.Debug("access token refreshed", zap.Bool("rotated", grant.RefreshToken != ""))
	return next.AccessToken, nil
}

// terminate clears the session once; later calls while unauthenticated are no-ops.
func (m *TokenManager) terminate(ctx context.Context, reason error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.generation++
	m.mu.Unlock()

	if err := m.wipe(ctx); err != nil {
		m.logger.Warn("failed to clear stored tokens", zap.Error(err))
	}
	m.logger.Info("session terminated", zap.Error(reason))

	m.hookMu.RLock()
	hooks := append([]TerminationHook(nil), m.hooks...)
	m.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, reason)
	}
}

// persist saves pair unless the session has moved past generation since it was computed.
func (m *TokenManager) persist(ctx context.Context, generation uint64, pair models.TokenPair) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.RLock()
	current := m.generation
	m.mu.RUnlock()
	if current != generation {
		m.logger.Debug("skipping token save for a superseded session", zap.Uint64("generation", generation))
		return nil
	}
	return m.store.Save(ctx, pair)
}

func (m *TokenManager) wipe(ctx context.Context) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	return m.store.Clear(ctx)
}

func (m *TokenManager) record(outcome string) {
	if m.observer != nil {
		m.observer.RecordRefresh(outcome)
	}
}
