// Package api serves the REST surface, the websocket endpoint and the
// health and metrics routes over one gin engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pishield/pishield/pkg/auth"
	"github.com/pishield/pishield/pkg/database"
	"github.com/pishield/pishield/pkg/detector"
	"github.com/pishield/pishield/pkg/devices"
	"github.com/pishield/pishield/pkg/firewall"
	"github.com/pishield/pishield/pkg/models"
)

// Broadcaster pushes dashboard events to websocket clients.
type Broadcaster interface {
	BroadcastNewAlert(alert models.Alert) int
	BroadcastStats(stats models.DashboardStats) int
	BroadcastAlertUpdate(id string, status models.AlertStatus) int
}

// Accounts is the identity provider behind the /api/auth routes.
type Accounts interface {
	SignInWithPassword(ctx context.Context, email, password string) (auth.Session, error)
	CreateUser(ctx context.Context, email, password, name string) (auth.User, error)
	SignOut(ctx context.Context, token string) error
	GetUser(ctx context.Context, token string) (auth.User, error)
}

// Deps are the collaborators of the HTTP server. Accounts, WS, Resolver and
// Devices may be nil.
type Deps struct {
	Store       database.Store
	Broadcaster Broadcaster
	Stats       detector.StatsComputer
	Verifier    auth.Verifier
	Accounts    Accounts
	Firewall    firewall.Firewall
	Devices     devices.Inventory
	Resolver    database.CountryResolver
	WS          http.Handler
	Log         *logrus.Logger
}

// Server is the HTTP front of the process.
type Server struct {
	deps   Deps
	engine *gin.Engine
	http   *http.Server
	log    *logrus.Entry
}

// NewServer builds the router. addr is only used by ListenAndServe.
func NewServer(addr string, deps Deps) *Server {
	if deps.Resolver == nil {
		deps.Resolver = database.NewNullResolver()
	}
	if deps.Devices == nil {
		deps.Devices = devices.NewStaticInventory()
	}
	registerValidators()

	s := &Server{
		deps: deps,
		log:  deps.Log.WithField("component", "api"),
	}
	s.engine = s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), requestMetrics(), cors(), securityHeaders())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.deps.WS != nil {
		r.GET("/ws", gin.WrapH(s.deps.WS))
	}

	api := r.Group("/api")
	{
		authRoutes := api.Group("/auth")
		authRoutes.POST("/login", s.login)
		authRoutes.POST("/signup", s.signup)
		authRoutes.POST("/logout", s.logout)
		authRoutes.GET("/me", s.me)

		protected := api.Group("", requireAuth(s.deps.Verifier, s.log))

		alerts := protected.Group("/alerts")
		alerts.GET("", s.listAlerts)
		alerts.GET("/:id", s.getAlert)
		alerts.PUT("/:id/status", s.updateAlertStatus)
		alerts.POST("", s.createAlert)

		dashboard := protected.Group("/dashboard")
		dashboard.GET("/stats", s.dashboardStats)
		dashboard.GET("/chart-data", s.chartData)
		dashboard.GET("/attack-sources", s.attackSources)

		actions := protected.Group("/actions")
		actions.POST("/block-ip", s.blockIP)
		actions.POST("/unblock-ip", s.unblockIP)
		actions.GET("/blocked-ips", s.blockedIPs)

		protected.GET("/devices", s.listDevices)
	}

	// Clients that connect the websocket to the server root still get upgraded.
	r.NoRoute(func(c *gin.Context) {
		if s.deps.WS != nil && websocket.IsWebSocketUpgrade(c.Request) {
			s.deps.WS.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.http.Addr).Info("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// pushStats recomputes the dashboard snapshot and broadcasts it. Failures
// are logged only; the triggering request has already succeeded.
func (s *Server) pushStats(ctx context.Context) {
	stats, err := s.deps.Stats.Compute(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Skipping stats broadcast")
		return
	}
	s.deps.Broadcaster.BroadcastStats(stats)
}

// abortError writes {"error": msg} with status.
func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
