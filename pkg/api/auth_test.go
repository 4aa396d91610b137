package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pishield/pishield/pkg/auth"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@example.com", "password": "secret"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		User         auth.User `json:"user"`
		Token        string    `json:"token"`
		RefreshToken string    `json:"refreshToken"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Equal(t, "access", resp.Token)
	assert.Equal(t, "refresh", resp.RefreshToken)

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid login credentials", errorOf(t, w))

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email and password are required", errorOf(t, w))
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/signup", map[string]string{"email": "new@example.com", "password": "pw", "name": "New"}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/signup", map[string]string{"email": "taken@example.com", "password": "pw"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already registered", errorOf(t, w))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/logout", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{validToken}, env.accounts.signedOut)

	w = env.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.accounts.signedOut, 1)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/auth/me", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/auth/me", nil, "other")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No token provided", errorOf(t, w))
}

func TestAuthWithoutProvider(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Accounts = nil })

	w := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@b.c", "password": "x"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// /me falls back to the token verifier.
	w = env.do(t, http.MethodGet, "/api/auth/me", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		User auth.User `json:"user"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "user-1", resp.User.ID)
}
