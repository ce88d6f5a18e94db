package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
)

func TestLogoutSendsCurrentTokenWithoutRefreshing(t *testing.T) {
	tokens := &fakeTokens{token: "unused", renewed: "fresh"}
	var hits int32
	var gotAuth, gotPath string
	var body models.RefreshTokenRequest
	pipeline, retries, _ := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusUnauthorized, `{"success":false,"message":"Token expired"}`)
	}, tokens)
	api := NewAccountAPI(pipeline, StudentEndpoints())

	err := api.Logout(context.Background(), models.TokenPair{AccessToken: "expired", RefreshToken: "r1"})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, "/auth/logout", gotPath)
	assert.Equal(t, "Bearer expired", gotAuth)
	assert.Equal(t, "r1", body.RefreshToken)

	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	assert.Zero(t, tokens.renewCalls)
	assert.Empty(t, tokens.terminated)
	assert.Empty(t, retries.outcomes)
}

func TestLogoutSucceeds(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"message":"Logged out"}`)
	}, &fakeTokens{})
	api := NewAccountAPI(pipeline, StudentEndpoints())

	require.NoError(t, api.Logout(context.Background(), models.TokenPair{AccessToken: "a", RefreshToken: "r"}))
}
