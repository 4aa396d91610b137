package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pishield/pishield/pkg/auth"
	"github.com/pishield/pishield/pkg/database"
	"github.com/pishield/pishield/pkg/detector"
	"github.com/pishield/pishield/pkg/devices"
	"github.com/pishield/pishield/pkg/models"
)

const validToken = "valid-token"

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
	update []models.AlertStatusChange
}

func (b *recordingBroadcaster) record(ev string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) BroadcastNewAlert(models.Alert) int {
	b.record("NEW_ALERT")
	return 1
}

func (b *recordingBroadcaster) BroadcastStats(models.DashboardStats) int {
	b.record("STATS_UPDATE")
	return 1
}

func (b *recordingBroadcaster) BroadcastAlertUpdate(id string, status models.AlertStatus) int {
	b.record("ALERT_UPDATE")
	b.mu.Lock()
	b.update = append(b.update, models.AlertStatusChange{ID: id, Status: status})
	b.mu.Unlock()
	return 1
}

func (b *recordingBroadcaster) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

type fakeFirewall struct {
	mu        sync.Mutex
	blocked   []string
	unblocked []string
	err       error
}

func (f *fakeFirewall) Block(_ context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked = append(f.blocked, ip)
	return f.err
}

func (f *fakeFirewall) Unblock(_ context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unblocked = append(f.unblocked, ip)
	return f.err
}

type fakeAccounts struct {
	signedOut []string
}

func (a *fakeAccounts) SignInWithPassword(_ context.Context, email, password string) (auth.Session, error) {
	if password != "secret" {
		return auth.Session{}, &auth.APIError{Status: 400, Message: "Invalid login credentials"}
	}
	return auth.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		User:         auth.User{ID: "user-1", Email: email},
	}, nil
}

func (a *fakeAccounts) CreateUser(_ context.Context, email, _, name string) (auth.User, error) {
	if email == "taken@example.com" {
		return auth.User{}, &auth.APIError{Status: 422, Message: "User already registered"}
	}
	return auth.User{ID: "user-2", Email: email, UserMetadata: map[string]interface{}{"name": name}}, nil
}

func (a *fakeAccounts) SignOut(_ context.Context, token string) error {
	a.signedOut = append(a.signedOut, token)
	return nil
}

func (a *fakeAccounts) GetUser(_ context.Context, token string) (auth.User, error) {
	if token != validToken {
		return auth.User{}, &auth.APIError{Status: 401, Message: "invalid JWT"}
	}
	return auth.User{ID: "user-1", Email: "admin@example.com"}, nil
}

type failingStore struct {
	*database.MemoryStore
}

func (failingStore) ListAlerts(context.Context, models.AlertFilter, models.Page) ([]models.Alert, int, error) {
	return nil, 0, errors.New("connection refused")
}

func (failingStore) AlertsPerDay(context.Context, time.Time, time.Time) ([]models.DailyCount, error) {
	return nil, errors.New("connection refused")
}

type testEnv struct {
	store    *database.MemoryStore
	bc       *recordingBroadcaster
	fw       *fakeFirewall
	accounts *fakeAccounts
	handler  http.Handler
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	log := quietLogger()
	env := &testEnv{
		store:    database.NewMemoryStore(),
		bc:       &recordingBroadcaster{},
		fw:       &fakeFirewall{},
		accounts: &fakeAccounts{},
	}
	inv := devices.NewStaticInventory()
	deps := Deps{
		Store:       env.store,
		Broadcaster: env.bc,
		Stats:       detector.NewStatsAggregator(env.store, inv, detector.DefaultStatsConfig(), log),
		Verifier:    auth.NewStaticVerifier(map[string]string{validToken: "user-1"}),
		Accounts:    env.accounts,
		Firewall:    env.fw,
		Devices:     inv,
		Log:         log,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.handler = NewServer(":0", deps).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, alerts ...models.Alert) []models.Alert {
	t.Helper()
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		stored, err := e.store.InsertAlert(context.Background(), a)
		require.NoError(t, err)
		out = append(out, stored)
	}
	return out
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	_, err := time.Parse(time.RFC3339Nano, body["timestamp"])
	assert.NoError(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", nil, "")

	w := env.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pishield_http_requests_total")
}

func TestWebsocketRoute(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.WS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	})
	w := env.do(t, http.MethodGet, "/ws", nil, "")
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodOptions, "/api/alerts", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "Authorization token required"},
		{"wrong scheme", "Basic abc", "Authorization token required"},
		{"empty bearer", "Bearer ", "Invalid authorization format"},
		{"invalid token", "Bearer nope", "Invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.want, errorOf(t, w))
		})
	}
}

func TestValidIPv4(t *testing.T) {
	tests := []struct {
		ip    string
		valid bool
	}{
		{"0.0.0.0", true},
		{"192.168.1.1", true},
		{"255.255.255.255", true},
		{"10.0.0.01", true},
		{"256.1.1.1", false},
		{"1.2.3.300", false},
		{"1.2.3", false},
		{"1.2.3.4.5", false},
		{"a.b.c.d", false},
		{"", false},
		{" 1.2.3.4", false},
		{"::1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidIPv4(tt.ip), tt.ip)
	}
}

func TestNormalizeIPv4(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.1.1.1", "10.1.1.1"},
		{"010.001.000.1", "10.1.0.1"},
		{"0.0.0.0", "0.0.0.0"},
		{"00.00.00.00", "0.0.0.0"},
		{"256.1.1.1", "256.1.1.1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeIPv4(tt.in), tt.in)
	}
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
