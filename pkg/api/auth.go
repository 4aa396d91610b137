package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pishield/pishield/pkg/auth"
)

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

// tokenForgetter is implemented by verifiers that cache tokens.
type tokenForgetter interface {
	Forget(ctx context.Context, token string)
}

func providerMessage(err error) string {
	var apiErr *auth.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func (s *Server) accountsAvailable(c *gin.Context) bool {
	if s.deps.Accounts == nil {
		abortError(c, http.StatusServiceUnavailable, "Authentication service not configured")
		return false
	}
	return true
}

func (s *Server) login(c *gin.Context) {
	if !s.accountsAvailable(c) {
		return
	}
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	session, err := s.deps.Accounts.SignInWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.log.WithError(err).WithField("email", req.Email).Warn("Login failed")
		abortError(c, http.StatusUnauthorized, providerMessage(err))
		return
	}

	s.log.WithField("email", req.Email).Info("User logged in")
	c.JSON(http.StatusOK, gin.H{
		"user":         session.User,
		"token":        session.AccessToken,
		"refreshToken": session.RefreshToken,
	})
}

func (s *Server) signup(c *gin.Context) {
	if !s.accountsAvailable(c) {
		return
	}
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := s.deps.Accounts.CreateUser(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.log.WithError(err).WithField("email", req.Email).Warn("Signup failed")
		abortError(c, http.StatusBadRequest, providerMessage(err))
		return
	}

	s.log.WithField("email", req.Email).Info("New user created")
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// logout revokes the session when a bearer token is given. Provider errors
// are logged; the client discards its token either way.
func (s *Server) logout(c *gin.Context) {
	if token, ok := auth.BearerToken(c.GetHeader("Authorization")); ok {
		ctx := c.Request.Context()
		if f, ok := s.deps.Verifier.(tokenForgetter); ok {
			f.Forget(ctx, token)
		}
		if s.deps.Accounts != nil {
			if err := s.deps.Accounts.SignOut(ctx, token); err != nil {
				s.log.WithError(err).Warn("Provider sign-out failed")
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (s *Server) me(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		abortError(c, http.StatusUnauthorized, "No token provided")
		return
	}

	if s.deps.Accounts == nil {
		p, err := s.deps.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abortError(c, http.StatusUnauthorized, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": auth.User{ID: p.ID, Email: p.Email}})
		return
	}

	user, err := s.deps.Accounts.GetUser(c.Request.Context(), token)
	if err != nil {
		abortError(c, http.StatusUnauthorized, providerMessage(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
