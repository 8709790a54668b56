//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-auth-service/internal/config"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/hasher"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/router"
	"go-auth-service/internal/service"
	"go-auth-service/internal/token"
)

const testSecret = "integration-test-secret-0123456789ab"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWithTTL(t, 15*time.Minute)
}

func newTestServerWithTTL(t *testing.T, accessTTL time.Duration) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		ServerPort:       "8080",
		RequestTimeout:   30 * time.Second,
		JWTSecret:        testSecret,
		JWTAccessTTL:     accessTTL,
		JWTRefreshTTL:    24 * time.Hour,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     1000,
		AuthRateLimitRPM: 1000,
	}

	codec := token.NewCodec(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	authService, err := service.NewAuthService(
		repository.NewMemoryUserRepository(),
		repository.NewMemoryTokenRepository(),
		hasher.NewArgon2id(),
		codec,
		cfg.JWTRefreshTTL,
	)
	require.NoError(t, err)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	server := httptest.NewServer(router.New(cfg, authMiddleware, router.Handlers{
		Auth: handler.NewAuthHandler(authService),
		User: handler.NewUserHandler(authService),
	}))
	t.Cleanup(server.Close)

	return server
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func doAuthRequest(t *testing.T, method string, url string, payload any, accessToken string) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if payload == nil {
		reader = bytes.NewReader([]byte{})
	} else {
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *http.Response, data any) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func signup(t *testing.T, serverURL string, username string, name string, password string) *http.Response {
	t.Helper()
	return postJSON(t, serverURL+"/api/v1/auth/signup", model.SignupRequest{
		Username: username,
		Name:     name,
		Password: password,
	})
}

func login(t *testing.T, serverURL string, username string, password string) (*http.Response, model.TokenPair) {
	t.Helper()

	resp := postJSON(t, serverURL+"/api/v1/auth/login", model.LoginRequest{
		Username: username,
		Password: password,
	})

	var pair model.TokenPair
	if resp.StatusCode == http.StatusOK {
		envelope := decodeEnvelope(t, resp, &pair)
		require.True(t, envelope.Success)
	}
	return resp, pair
}
