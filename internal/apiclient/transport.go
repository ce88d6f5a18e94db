package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
	"github.com/noah-isme/sma-adp-portal/pkg/middleware/requestid"
)

const maxResponseBytes = 4 << 20

// Request is one outbound call. Endpoint is the unresolved template used as the metrics label.
type Request struct {
	Method   string
	Endpoint string
	Path     string
	Query    url.Values
	Body     interface{}
}

// NewRequest resolves the endpoint template against params.
func NewRequest(e Endpoint, params map[string]string) Request {
	return Request{Method: e.Method, Endpoint: e.Path, Path: e.Resolve(params)}
}

// CallObserver receives outbound call timings.
type CallObserver interface {
	ObserveUpstreamCall(method, endpoint string, status int, duration time.Duration)
}

// Transport sends a single request to the upstream API and maps the response into an Envelope or
// a typed error. It knows nothing about tokens beyond attaching the one it is given.
type Transport struct {
	baseURL  string
	client   *http.Client
	logger   *zap.Logger
	observer CallObserver
}

// TransportOption customises a Transport.
type TransportOption func(*Transport)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *Transport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithCallObserver records outbound call metrics.
func WithCallObserver(observer CallObserver) TransportOption {
	return func(t *Transport) {
		t.observer = observer
	}
}

// NewTransport constructs a Transport rooted at baseURL.
func NewTransport(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...TransportOption) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	t := &Transport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send issues req with the given bearer token (empty for public calls).
func (t *Transport) Send(ctx context.Context, req Request, token string) (*Envelope, error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	target := t.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestid.Header, requestid.FromContext(ctx))
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.observe(req, 0, start)
		t.logger.Warn("upstream call failed",
			zap.String("method", req.Method),
			zap.String("endpoint", req.Endpoint),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, appErrors.ErrNetwork.Message)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	t.observe(req, resp.StatusCode, start)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, appErrors.ErrNetwork.Message)
	}

	t.logger.Debug("upstream call",
		zap.String("method", req.Method),
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	env, decodeErr := DecodeEnvelope(raw)
	if resp.StatusCode >= http.StatusBadRequest {
		message := ""
		if decodeErr == nil {
			message = env.Message
		}
		return nil, appErrors.FromStatus(resp.StatusCode, message)
	}
	if decodeErr != nil {
		return nil, appErrors.Wrap(decodeErr, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, appErrors.ErrDecode.Message)
	}
	if env.Failed() {
		return nil, appErrors.Clone(appErrors.ErrValidation, env.Message)
	}
	return env, nil
}

func (t *Transport) observe(req Request, status int, start time.Time) {
	if t.observer == nil {
		return
	}
	t.observer.ObserveUpstreamCall(req.Method, req.Endpoint, status, time.Since(start))
}

// decodeInto wraps payload decode failures as DECODE_ERROR.
func decodeInto(env *Envelope, out interface{}) error {
	if err := env.Decode(out); err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, appErrors.ErrDecode.Message)
	}
	return nil
}
