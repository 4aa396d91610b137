package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SupabaseConfig configures the GoTrue client.
type SupabaseConfig struct {
	URL            string // project URL, e.g. https://xyz.supabase.co
	ServiceRoleKey string
	AnonKey        string
	Timeout        time.Duration
}

// User is the subset of the GoTrue user object the dashboard uses.
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Session is returned by a successful password login.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// APIError is a non-2xx GoTrue response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase auth: %d %s", e.Status, e.Message)
}

// SupabaseClient talks to the Supabase auth (GoTrue) REST API.
type SupabaseClient struct {
	baseURL    string
	serviceKey string
	anonKey    string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewSupabaseClient creates a GoTrue client.
func NewSupabaseClient(cfg SupabaseConfig, log *logrus.Logger) *SupabaseClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SupabaseClient{
		baseURL:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		serviceKey: cfg.ServiceRoleKey,
		anonKey:    cfg.AnonKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.WithField("component", "supabase-auth"),
	}
}

// Verify resolves an access token to its user.
func (c *SupabaseClient) Verify(ctx context.Context, token string) (Principal, error) {
	user, err := c.GetUser(ctx, token)
	if err != nil {
		c.log.WithError(err).Debug("Token verification failed")
		return Principal{}, ErrInvalidToken
	}
	return Principal{ID: user.ID, Email: user.Email}, nil
}

// GetUser returns the user owning an access token.
func (c *SupabaseClient) GetUser(ctx context.Context, token string) (User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/user", token, nil, &user)
	return user, err
}

// SignInWithPassword performs a password grant.
func (c *SupabaseClient) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	var session Session
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", c.serviceKey, body, &session)
	return session, err
}

// CreateUser creates a confirmed user through the admin API.
func (c *SupabaseClient) CreateUser(ctx context.Context, email, password, name string) (User, error) {
	var user User
	body := map[string]interface{}{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"user_metadata": map[string]string{"name": name},
	}
	err := c.do(ctx, http.MethodPost, "/admin/users", c.serviceKey, body, &user)
	return user, err
}

// SignOut revokes the session behind an access token.
func (c *SupabaseClient) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/logout", token, nil, nil)
}

func (c *SupabaseClient) do(ctx context.Context, method, path, bearer string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	apiKey := c.serviceKey
	if apiKey == "" {
		apiKey = c.anonKey
	}
	req.Header.Set("apikey", apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage picks the human-readable field out of a GoTrue error body.
func errorMessage(data []byte) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(data))
}
