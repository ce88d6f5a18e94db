package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
)

type authClient interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.TokenGrant, error)
}

type accountClient interface {
	Me(ctx context.Context) (*models.UserIdentity, error)
	Logout(ctx context.Context, pair models.TokenPair) error
}

type sessionManager interface {
	Establish(ctx context.Context, session models.Session) error
	Current() (models.Session, bool)
	SetUser(user *models.UserIdentity)
	Rehydrate(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
	OnTerminated(hook TerminationHook)
}

type enrollmentCache interface {
	LoadEnrollments(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error)
	Reset()
}

// Redirector tells the presentation layer to navigate to the login screen.
type Redirector interface {
	RedirectToLogin(ctx context.Context, reason error)
}

// SessionService orchestrates login, bootstrap and logout around the token manager and the
// enrollment cache.
type SessionService struct {
	auth       authClient
	account    accountClient
	tokens     sessionManager
	cache      enrollmentCache
	redirector Redirector
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSessionService constructs a SessionService and subscribes it to session termination.
func NewSessionService(auth authClient, account accountClient, tokens sessionManager, cache enrollmentCache, redirector Redirector, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	s := &SessionService{
		auth:       auth,
		account:    account,
		tokens:     tokens,
		cache:      cache,
		redirector: redirector,
		validator:  validate,
		logger:     logger,
	}
	tokens.OnTerminated(s.handleTerminated)
	return s
}

// Login authenticates against the upstream API and establishes the session. Students get their
// enrollments loaded; a failed initial load does not fail the login.
func (s *SessionService) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	grant, err := s.auth.Login(ctx, req)
	if err != nil {
		return nil, err
	}

	s.cache.Reset()
	session := models.Session{
		TokenPair: models.TokenPair{AccessToken: grant.AccessToken, RefreshToken: grant.RefreshToken},
		User:      grant.User,
	}
	if err := s.tokens.Establish(ctx, session); err != nil {
		return nil, err
	}

	user := grant.User
	if user == nil {
		user, err = s.account.Me(ctx)
		if err != nil {
			s.logger.Warn("login succeeded but profile lookup failed", zap.Error(err))
		} else {
			s.tokens.SetUser(user)
		}
	}
	s.loadForStudent(ctx, user)

	s.logger.Info("session established", zap.String("username", req.Username))
	current, ok := s.tokens.Current()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrSessionTerminated, "session ended during login")
	}
	return &current, nil
}

// Bootstrap restores a persisted session and its user. It reports whether a session is active.
func (s *SessionService) Bootstrap(ctx context.Context) (bool, error) {
	restored, err := s.tokens.Rehydrate(ctx)
	if err != nil {
		return false, err
	}
	if !restored {
		return false, nil
	}

	user, err := s.account.Me(ctx)
	if err != nil {
		if errors.Is(err, appErrors.ErrSessionTerminated) {
			return false, nil
		}
		return true, err
	}
	s.tokens.SetUser(user)
	s.loadForStudent(ctx, user)
	return true, nil
}

// Me fetches the current user from the server and refreshes the cached identity.
func (s *SessionService) Me(ctx context.Context) (*models.UserIdentity, error) {
	user, err := s.account.Me(ctx)
	if err != nil {
		return nil, err
	}
	s.tokens.SetUser(user)
	return user, nil
}

// Current returns the local session view.
func (s *SessionService) Current() (models.Session, bool) {
	return s.tokens.Current()
}

// Logout revokes the session server side on a best-effort basis and clears local state.
func (s *SessionService) Logout(ctx context.Context) error {
	if session, ok := s.tokens.Current(); ok {
		if err := s.account.Logout(ctx, session.TokenPair); err != nil {
			s.logger.Warn("upstream logout failed, clearing local session anyway", zap.Error(err))
		}
	}
	s.cache.Reset()
	return s.tokens.Clear(ctx)
}

func (s *SessionService) loadForStudent(ctx context.Context, user *models.UserIdentity) {
	if user == nil || user.Role != models.RoleStudent || user.ID == "" {
		return
	}
	if _, err := s.cache.LoadEnrollments(ctx, user.ID); err != nil {
		s.logger.Warn("initial enrollment load failed", zap.String("student_id", user.ID), zap.Error(err))
	}
}

func (s *SessionService) handleTerminated(ctx context.Context, reason error) {
	s.cache.Reset()
	if s.redirector != nil {
		s.redirector.RedirectToLogin(ctx, reason)
	}
}

// LoginRedirect records the last involuntary termination so the next agent response can send the
// UI back to the login screen.
type LoginRedirect struct {
	mu      sync.Mutex
	pending bool
	reason  string
	at      time.Time
	logger  *zap.Logger
}

// NewLoginRedirect constructs a LoginRedirect.
func NewLoginRedirect(logger *zap.Logger) *LoginRedirect {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginRedirect{logger: logger}
}

// RedirectToLogin implements Redirector.
func (r *LoginRedirect) RedirectToLogin(ctx context.Context, reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = true
	r.reason = appErrors.ErrSessionTerminated.Message
	if appErr := appErrors.FromError(reason); appErr != nil && appErr.Message != "" {
		r.reason = appErr.Message
	}
	r.at = time.Now().UTC()
	r.logger.Info("redirecting to login", zap.String("reason", r.reason))
}

// Consume returns the pending redirect, if any, and clears it.
func (r *LoginRedirect) Consume() (reason string, at time.Time, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending {
		return "", time.Time{}, false
	}
	r.pending = false
	return r.reason, r.at, true
}
