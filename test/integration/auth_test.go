//go:build integration

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
)

func TestSignupLoginMeFlow(t *testing.T) {
	server := newTestServer(t)

	signupResp := signup(t, server.URL, "alice", "Alice", "s3cret")
	require.Equal(t, http.StatusCreated, signupResp.StatusCode)

	var created model.PublicUser
	env := decodeEnvelope(t, signupResp, &created)
	require.True(t, env.Success)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "Alice", created.Name)
	assert.NotEmpty(t, created.ID)

	wrongResp, _ := login(t, server.URL, "alice", "wrong")
	assert.Equal(t, http.StatusUnauthorized, wrongResp.StatusCode)

	okResp, pair := login(t, server.URL, "alice", "s3cret")
	require.Equal(t, http.StatusOK, okResp.StatusCode)
	require.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, "Bearer", pair.TokenType)

	meResp := doAuthRequest(t, http.MethodGet, server.URL+"/api/v1/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, meResp.StatusCode)

	body, err := io.ReadAll(meResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"username":"alice"`)
	assert.Contains(t, string(body), `"name":"Alice"`)
	// No credential material in the response, under any field name.
	assert.NotContains(t, strings.ToLower(string(body)), "password")
	assert.NotContains(t, string(body), "argon2id")
}

func TestSignupValidation(t *testing.T) {
	server := newTestServer(t)

	resp := signup(t, server.URL, "", "Nameless", "s3cret")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = signup(t, server.URL, "bob", "Bob", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignupDuplicateUsername(t *testing.T) {
	server := newTestServer(t)

	first := signup(t, server.URL, "alice", "Alice", "s3cret")
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second := signup(t, server.URL, "alice", "Else", "other")
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	env := decodeEnvelope(t, second, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_EXISTS", env.Error.Code)
}

func TestLoginUnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	server := newTestServer(t)

	resp := signup(t, server.URL, "alice", "Alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	wrongResp, _ := login(t, server.URL, "alice", "wrong")
	unknownResp, _ := login(t, server.URL, "ghost", "whatever")

	require.Equal(t, http.StatusUnauthorized, wrongResp.StatusCode)
	require.Equal(t, http.StatusUnauthorized, unknownResp.StatusCode)

	wrongEnv := decodeEnvelope(t, wrongResp, nil)
	unknownEnv := decodeEnvelope(t, unknownResp, nil)
	require.NotNil(t, wrongEnv.Error)
	require.NotNil(t, unknownEnv.Error)
	assert.Equal(t, wrongEnv.Error.Code, unknownEnv.Error.Code)
	assert.Equal(t, wrongEnv.Error.Message, unknownEnv.Error.Message)
}

func TestProtectedEndpointRejectsBadTokens(t *testing.T) {
	server := newTestServer(t)

	resp := signup(t, server.URL, "alice", "Alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	okResp, pair := login(t, server.URL, "alice", "s3cret")
	require.Equal(t, http.StatusOK, okResp.StatusCode)

	t.Run("no token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/auth/me", nil)
		require.NoError(t, err)
		noToken, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = noToken.Body.Close() })
		assert.Equal(t, http.StatusUnauthorized, noToken.StatusCode)
	})

	t.Run("garbage token", func(t *testing.T) {
		garbage := doAuthRequest(t, http.MethodGet, server.URL+"/api/v1/auth/me", nil, "garbage")
		assert.Equal(t, http.StatusUnauthorized, garbage.StatusCode)
	})

	t.Run("tampered token", func(t *testing.T) {
		parts := strings.Split(pair.AccessToken, ".")
		require.Len(t, parts, 3)
		tampered := parts[0] + "." + parts[1] + "x." + parts[2]
		resp := doAuthRequest(t, http.MethodGet, server.URL+"/api/v1/auth/me", nil, tampered)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("expired token", func(t *testing.T) {
		expiredServer := newTestServerWithTTL(t, -1*time.Second)
		resp := signup(t, expiredServer.URL, "bob", "Bob", "s3cret")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		okResp, expiredPair := login(t, expiredServer.URL, "bob", "s3cret")
		require.Equal(t, http.StatusOK, okResp.StatusCode)

		meResp := doAuthRequest(t, http.MethodGet, expiredServer.URL+"/api/v1/auth/me", nil, expiredPair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, meResp.StatusCode)
	})
}

func TestRefreshAndLogout(t *testing.T) {
	server := newTestServer(t)

	resp := signup(t, server.URL, "alice", "Alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	okResp, pair := login(t, server.URL, "alice", "s3cret")
	require.Equal(t, http.StatusOK, okResp.StatusCode)

	refreshResp := postJSON(t, server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)

	var rotated model.TokenPair
	env := decodeEnvelope(t, refreshResp, &rotated)
	require.True(t, env.Success)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The spent refresh token is gone.
	replayResp := postJSON(t, server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, replayResp.StatusCode)

	logoutResp := doAuthRequest(t, http.MethodPost, server.URL+"/api/v1/auth/logout",
		model.RefreshRequest{RefreshToken: rotated.RefreshToken}, rotated.AccessToken)
	require.Equal(t, http.StatusOK, logoutResp.StatusCode)

	afterLogout := postJSON(t, server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, afterLogout.StatusCode)
}

func TestChangePasswordFlow(t *testing.T) {
	server := newTestServer(t)

	resp := signup(t, server.URL, "alice", "Alice", "old-secret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	okResp, pair := login(t, server.URL, "alice", "old-secret")
	require.Equal(t, http.StatusOK, okResp.StatusCode)

	changeResp := doAuthRequest(t, http.MethodPut, server.URL+"/api/v1/auth/password",
		model.ChangePasswordRequest{CurrentPassword: "old-secret", NewPassword: "new-secret"}, pair.AccessToken)
	require.Equal(t, http.StatusOK, changeResp.StatusCode)

	oldResp, _ := login(t, server.URL, "alice", "old-secret")
	assert.Equal(t, http.StatusUnauthorized, oldResp.StatusCode)

	newResp, _ := login(t, server.URL, "alice", "new-secret")
	assert.Equal(t, http.StatusOK, newResp.StatusCode)
}

func TestUserManagement(t *testing.T) {
	server := newTestServer(t)

	resp := signup(t, server.URL, "alice", "Alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var bob model.PublicUser
	bobResp := signup(t, server.URL, "bob", "Bob", "s3cret")
	require.Equal(t, http.StatusCreated, bobResp.StatusCode)
	env := decodeEnvelope(t, bobResp, &bob)
	require.True(t, env.Success)

	okResp, pair := login(t, server.URL, "alice", "s3cret")
	require.Equal(t, http.StatusOK, okResp.StatusCode)

	listResp := doAuthRequest(t, http.MethodGet, server.URL+"/api/v1/users", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var list model.PublicUserList
	listEnv := decodeEnvelope(t, listResp, &list)
	require.True(t, listEnv.Success)
	require.Len(t, list.Users, 2)
	assert.Equal(t, "alice", list.Users[0].Username)
	assert.Equal(t, "bob", list.Users[1].Username)

	getResp := doAuthRequest(t, http.MethodGet, server.URL+"/api/v1/users/"+bob.ID, nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	deleteResp := doAuthRequest(t, http.MethodDelete, server.URL+"/api/v1/users/"+bob.ID, nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, deleteResp.StatusCode)

	goneResp := doAuthRequest(t, http.MethodGet, server.URL+"/api/v1/users/"+bob.ID, nil, pair.AccessToken)
	assert.Equal(t, http.StatusNotFound, goneResp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	server := newTestServer(t)

	var victim model.PublicUser
	victimResp := signup(t, server.URL, "victim", "", "s3cret")
	require.Equal(t, http.StatusCreated, victimResp.StatusCode)
	decodeEnvelope(t, victimResp, &victim)

	adminResp := signup(t, server.URL, "admin", "", "s3cret")
	require.Equal(t, http.StatusCreated, adminResp.StatusCode)

	victimLogin, victimPair := login(t, server.URL, "victim", "s3cret")
	require.Equal(t, http.StatusOK, victimLogin.StatusCode)
	adminLogin, adminPair := login(t, server.URL, "admin", "s3cret")
	require.Equal(t, http.StatusOK, adminLogin.StatusCode)

	deleteResp := doAuthRequest(t, http.MethodDelete, server.URL+"/api/v1/users/"+victim.ID, nil, adminPair.AccessToken)
	require.Equal(t, http.StatusOK, deleteResp.StatusCode)

	// Signature is still valid, but the subject no longer exists.
	meResp := doAuthRequest(t, http.MethodGet, server.URL+"/api/v1/auth/me", nil, victimPair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, meResp.StatusCode)
}
