package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pishield/pishield/pkg/auth"
)

var httpRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pishield_http_requests_total",
		Help: "HTTP requests by method, route and status",
	},
	[]string{"method", "route", "status"},
)

func init() {
	prometheus.MustRegister(httpRequests)
}

const principalKey = "pishield_principal"

// requireAuth verifies the bearer token and stores the principal on the context.
func requireAuth(v auth.Verifier, log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortError(c, http.StatusUnauthorized, "Authorization token required")
			return
		}
		token, ok := auth.BearerToken(header)
		if !ok {
			abortError(c, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		p, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			log.WithError(err).Warn("Token verification failed")
			abortError(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// principalFrom returns the principal stored by requireAuth.
func principalFrom(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// requestLogger writes one entry per request.
func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("HTTP request")
		case c.Writer.Status() >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// cors allows any origin, as the dashboard is served from a different port.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
