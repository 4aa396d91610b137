// Package auth resolves bearer tokens to principals.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidToken is returned when a token cannot be resolved to a principal.
var ErrInvalidToken = errors.New("invalid or expired token")

// Principal is the authenticated identity behind a token.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Verifier exchanges a bearer token for a principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (Principal, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (Principal, error) {
	return f(ctx, token)
}

// StaticVerifier accepts a fixed token table. Used in development when no
// Supabase project is configured.
type StaticVerifier struct {
	tokens map[string]Principal
}

// NewStaticVerifier builds a verifier from token -> principal id pairs.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	v := &StaticVerifier{tokens: make(map[string]Principal, len(tokens))}
	for token, id := range tokens {
		v.tokens[token] = Principal{ID: id}
	}
	return v
}

// ParseStaticTokens parses "token:principal,token2:principal2".
func ParseStaticTokens(spec string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		token, id, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || id == "" {
			continue
		}
		out[token] = id
	}
	return out
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (Principal, error) {
	p, ok := v.tokens[token]
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
