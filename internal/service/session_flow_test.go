package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-portal/internal/apiclient"
	"github.com/noah-isme/sma-adp-portal/internal/models"
	"github.com/noah-isme/sma-adp-portal/internal/repository"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
)

// fakeUpstream serves the student endpoints and accepts only the access token it last issued.
type fakeUpstream struct {
	mu            sync.Mutex
	validToken    string
	nextToken     string
	refreshStatus int
	refreshCalls  int32
	listCalls     int32
	rejectAll     bool
}

func (u *fakeUpstream) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/refresh-token":
		atomic.AddInt32(&u.refreshCalls, 1)
		time.Sleep(20 * time.Millisecond)
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.refreshStatus != 0 {
			w.WriteHeader(u.refreshStatus)
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid refresh token"}`))
			return
		}
		u.validToken = u.nextToken
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": map[string]string{"accessToken": u.nextToken}})
	case "/enrollments/student/s1":
		atomic.AddInt32(&u.listCalls, 1)
		u.mu.Lock()
		ok := !u.rejectAll && r.Header.Get("Authorization") == "Bearer "+u.validToken
		u.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"Token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"e1","studentId":"s1","courseId":"c1","status":"enrolled"}]}`))
	default:
		http.NotFound(w, r)
	}
}

type flowFixture struct {
	upstream *fakeUpstream
	tokens   *TokenManager
	store    *repository.MemoryTokenStore
	api      *apiclient.EnrollmentAPI
}

func newFlowFixture(t *testing.T, upstream *fakeUpstream) *flowFixture {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(upstream.handler))
	t.Cleanup(server.Close)

	endpoints := apiclient.StudentEndpoints()
	transport := apiclient.NewTransport(server.URL, 2*time.Second, nil)
	store := repository.NewMemoryTokenStore()
	tokens := NewTokenManager(store, apiclient.NewAuthAPI(transport, endpoints), nil, WithTokenClock(func() time.Time { return testNow }))
	pipeline := apiclient.NewPipeline(transport, tokens, nil, nil)
	return &flowFixture{
		upstream: upstream,
		tokens:   tokens,
		store:    store,
		api:      apiclient.NewEnrollmentAPI(pipeline, endpoints),
	}
}

func TestConcurrentCallsWithExpiredTokenRefreshOnce(t *testing.T) {
	fresh := signedToken(t, "s1", testNow.Add(time.Hour))
	upstream := &fakeUpstream{nextToken: fresh}
	f := newFlowFixture(t, upstream)
	establish(t, f.tokens, signedToken(t, "s1", testNow.Add(-time.Minute)), "r1")

	const callers = 3
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.api.ListForStudent(context.Background(), "s1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.refreshCalls))
	assert.Equal(t, int32(callers), atomic.LoadInt32(&upstream.listCalls))
}

func TestRefreshRejectionClearsSessionWithoutFurtherCalls(t *testing.T) {
	upstream := &fakeUpstream{refreshStatus: http.StatusUnauthorized}
	f := newFlowFixture(t, upstream)
	establish(t, f.tokens, signedToken(t, "s1", testNow.Add(-time.Minute)), "r1")

	_, err := f.api.ListForStudent(context.Background(), "s1")
	assert.ErrorIs(t, err, appErrors.ErrSessionTerminated)

	_, ok := f.tokens.Current()
	assert.False(t, ok)
	pair, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, pair.Empty())

	for i := 0; i < 3; i++ {
		_, err := f.tokens.EnsureValidToken(context.Background())
		assert.ErrorIs(t, err, appErrors.ErrSessionTerminated)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.refreshCalls))
	assert.Zero(t, atomic.LoadInt32(&upstream.listCalls))
}

func TestUnauthorizedTwiceIsSentAtMostTwice(t *testing.T) {
	valid := signedToken(t, "s1", testNow.Add(time.Hour))
	upstream := &fakeUpstream{validToken: valid, nextToken: signedToken(t, "s1", testNow.Add(2*time.Hour)), rejectAll: true}
	f := newFlowFixture(t, upstream)
	establish(t, f.tokens, valid, "r1")

	var terminated int32
	f.tokens.OnTerminated(func(ctx context.Context, reason error) { atomic.AddInt32(&terminated, 1) })

	_, err := f.api.ListForStudent(context.Background(), "s1")
	assert.ErrorIs(t, err, appErrors.ErrSessionTerminated)
	assert.Contains(t, err.Error(), "Token expired")
	assert.Equal(t, int32(2), atomic.LoadInt32(&upstream.listCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.refreshCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&terminated))
}

func TestServerRejectedTokenIsRenewedAndRetried(t *testing.T) {
	current := signedToken(t, "s1", testNow.Add(time.Hour))
	fresh := signedToken(t, "s1", testNow.Add(2*time.Hour))
	upstream := &fakeUpstream{validToken: "revoked", nextToken: fresh}
	f := newFlowFixture(t, upstream)
	establish(t, f.tokens, current, "r1")

	records, err := f.api.ListForStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []models.EnrollmentKey{{StudentID: "s1", CourseID: "c1"}}, []models.EnrollmentKey{records[0].Key()})
	assert.Equal(t, int32(2), atomic.LoadInt32(&upstream.listCalls))

	session, ok := f.tokens.Current()
	require.True(t, ok)
	assert.Equal(t, fresh, session.AccessToken)
}
