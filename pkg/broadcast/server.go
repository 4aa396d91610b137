package broadcast

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pishield/pishield/pkg/auth"
)

// Server upgrades HTTP requests to websocket clients of a Hub.
type Server struct {
	hub          *Hub
	verifier     auth.Verifier
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	log          *logrus.Entry
}

// NewServer creates a websocket endpoint. pingInterval <= 0 uses 30s.
func NewServer(hub *Hub, verifier auth.Verifier, pingInterval time.Duration, log *logrus.Logger) *Server {
	return &Server{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pingInterval: pingInterval,
		log:          log.WithField("component", "ws"),
	}
}

// ServeHTTP runs one connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Failed to upgrade websocket")
		return
	}
	ws.SetReadLimit(maxMessageSize)

	entry := s.log.WithField("remote", r.RemoteAddr)
	c := newConn(ws, s.pingInterval, entry)
	entry.Info("WebSocket connection established")

	go c.writeLoop()
	s.readLoop(c)
}

// readLoop handles inbound frames. On return the connection is closed and
// its principal, if any, is removed from the registry.
func (s *Server) readLoop(c *Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		if p := c.Principal(); p != "" {
			s.hub.unregisterSink(p, c)
			c.log.WithField("principal", p).Info("WebSocket client disconnected")
		} else {
			c.log.Info("Unauthenticated WebSocket client disconnected")
		}
	}()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Debug("Read failed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.log.WithError(err).Warn("WebSocket message error")
			continue
		}

		switch msg.Type {
		case TypeAuth:
			s.handleAuth(ctx, c, msg.Token)
		default:
			c.log.WithField("type", msg.Type).Debug("Ignoring client message")
		}
	}
}

// handleAuth runs the AUTH transition. Failure leaves the connection in its
// current state and open for another attempt.
func (s *Server) handleAuth(ctx context.Context, c *Conn, token string) {
	if token == "" {
		s.reply(c, Message{Type: TypeAuthError, Message: "Authentication token required"})
		return
	}

	principal, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.reply(c, Message{Type: TypeAuthError, Message: "Authentication failed"})
		c.log.WithError(err).Warn("WebSocket authentication failed")
		return
	}

	// Acknowledge before registering so the ack precedes any broadcast.
	s.reply(c, Message{Type: TypeAuthSuccess, Message: "Authentication successful"})

	if prev := c.authenticate(principal.ID); prev != "" && prev != principal.ID {
		s.hub.unregisterSink(prev, c)
	}
	s.hub.Register(principal.ID, c)
	c.log.WithField("principal", principal.ID).Info("WebSocket client authenticated")
}

func (s *Server) reply(c *Conn, msg Message) {
	data, err := Encode(msg)
	if err != nil {
		c.log.WithError(err).Error("Failed to encode reply")
		return
	}
	c.Enqueue(data)
}
