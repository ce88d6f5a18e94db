package apiclient

import (
	"context"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
)

// TokenProvider supplies access tokens to the pipeline. The token manager implements it.
type TokenProvider interface {
	EnsureValidToken(ctx context.Context) (string, error)
	RenewAfterUnauthorized(ctx context.Context, staleToken string) (string, error)
	Terminate(ctx context.Context, reason error)
}

// RetryObserver counts authorization retries by outcome.
type RetryObserver interface {
	RecordAuthRetry(outcome string)
}

// Retry outcomes reported to the RetryObserver.
const (
	RetryRecovered  = "recovered"
	RetryTerminated = "terminated"
	RetryFailed     = "failed"
)

// Pipeline wraps authenticated calls: attach token, send, and on a 401 renew and resend once.
type Pipeline struct {
	transport *Transport
	tokens    TokenProvider
	logger    *zap.Logger
	observer  RetryObserver
}

// NewPipeline constructs a Pipeline. observer may be nil.
func NewPipeline(transport *Transport, tokens TokenProvider, observer RetryObserver, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{transport: transport, tokens: tokens, observer: observer, logger: logger}
}

// Do executes req and decodes the payload into out when out is non-nil.
func (p *Pipeline) Do(ctx context.Context, req Request, out interface{}) (*Envelope, error) {
	token, err := p.tokens.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	retried := false
	for {
		env, err := p.transport.Send(ctx, req, token)
		if err == nil {
			if retried {
				p.record(RetryRecovered)
			}
			if err := decodeInto(env, out); err != nil {
				return nil, err
			}
			return env, nil
		}
		if !errors.Is(err, appErrors.ErrUnauthorized) {
			if retried {
				p.record(RetryFailed)
			}
			return nil, err
		}
		if retried {
			p.record(RetryTerminated)
			terminated := appErrors.Wrap(err, appErrors.ErrSessionTerminated.Code, appErrors.ErrSessionTerminated.Status, serverMessage(err))
			p.logger.Warn("request rejected after token renewal, terminating session",
				zap.String("method", req.Method),
				zap.String("endpoint", req.Endpoint),
			)
			p.tokens.Terminate(ctx, terminated)
			return nil, terminated
		}

		retried = true
		token, err = p.tokens.RenewAfterUnauthorized(ctx, token)
		if err != nil {
			p.record(RetryFailed)
			return nil, err
		}
	}
}

// SendOnce sends req with the given token. It never refreshes, retries or terminates.
func (p *Pipeline) SendOnce(ctx context.Context, req Request, token string) (*Envelope, error) {
	return p.transport.Send(ctx, req, token)
}

func (p *Pipeline) record(outcome string) {
	if p.observer != nil {
		p.observer.RecordAuthRetry(outcome)
	}
}

// serverMessage keeps the upstream message when it differs from the generic sentinel text.
func serverMessage(err error) string {
	var typed *appErrors.Error
	if errors.As(err, &typed) && typed.Message != appErrors.ErrUnauthorized.Message {
		return typed.Message
	}
	return appErrors.ErrSessionTerminated.Message
}
