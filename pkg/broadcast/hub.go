// Package broadcast fans dashboard events out to authenticated websocket clients.
//
// The Hub owns the client registry: one live connection per principal, last
// registration wins. Delivery is best-effort and at-most-once. A message sent
// while a client is offline, or whose connection is closed or backed up, is
// dropped; clients resynchronize with a full fetch.
package broadcast

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pishield/pishield/pkg/models"
)

var (
	connectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pishield_ws_clients",
			Help: "Number of authenticated websocket clients in the registry",
		},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pishield_broadcast_messages_total",
			Help: "Broadcast deliveries by message type and result",
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(connectedClients)
	prometheus.MustRegister(messagesSent)
}

// Sink is the write side of a client connection.
type Sink interface {
	// Open reports whether the connection can still accept writes.
	Open() bool
	// Enqueue hands a frame to the connection without blocking. It returns
	// false if the frame was not accepted.
	Enqueue(data []byte) bool
}

// Target selects the recipients of a Send.
type Target struct {
	all        bool
	principals []string
}

// All targets every registered principal.
func All() Target {
	return Target{all: true}
}

// To targets a single principal.
func To(principal string) Target {
	return Target{principals: []string{principal}}
}

// ToSet targets several principals. An empty set reaches nobody and a
// repeated principal is delivered to once.
func ToSet(principals ...string) Target {
	return Target{principals: principals}
}

// Hub is the client registry plus the broadcast service.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Sink
	log     *logrus.Entry
}

// NewHub creates an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[string]Sink),
		log:     log.WithField("component", "hub"),
	}
}

// Register maps principal to sink, replacing any previous connection.
func (h *Hub) Register(principal string, sink Sink) {
	h.mu.Lock()
	_, replaced := h.clients[principal]
	h.clients[principal] = sink
	n := len(h.clients)
	h.mu.Unlock()

	connectedClients.Set(float64(n))
	if replaced {
		h.log.WithField("principal", principal).Info("Replaced existing client connection")
	}
}

// Unregister removes principal. Unknown principals are ignored.
func (h *Hub) Unregister(principal string) {
	h.mu.Lock()
	delete(h.clients, principal)
	n := len(h.clients)
	h.mu.Unlock()

	connectedClients.Set(float64(n))
}

// unregisterSink removes principal only while it still maps to sink, so a
// superseded connection closing late does not evict its replacement.
func (h *Hub) unregisterSink(principal string, sink Sink) bool {
	h.mu.Lock()
	current, ok := h.clients[principal]
	removed := ok && current == sink
	if removed {
		delete(h.clients, principal)
	}
	n := len(h.clients)
	h.mu.Unlock()

	connectedClients.Set(float64(n))
	return removed
}

// Lookup returns the sink registered for principal.
func (h *Hub) Lookup(principal string) (Sink, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.clients[principal]
	return s, ok
}

// Len returns the number of registered principals.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every registered connection that supports closing. Their
// read loops then remove them from the registry. Used on shutdown, since
// hijacked websocket connections outlive http.Server.Shutdown.
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.clients))
	for _, s := range h.clients {
		sinks = append(sinks, s)
	}
	h.mu.RUnlock()

	closed := 0
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
			closed++
		}
	}
	if closed > 0 {
		h.log.WithField("clients", closed).Info("Closed websocket clients")
	}
	return closed
}

// Send delivers msg to the target and returns how many connections accepted it.
func (h *Hub) Send(msg Message, target Target) int {
	data, err := Encode(msg)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode broadcast")
		return 0
	}

	// Resolve recipients under the lock, write outside it.
	h.mu.RLock()
	var sinks []Sink
	if target.all {
		sinks = make([]Sink, 0, len(h.clients))
		for _, s := range h.clients {
			sinks = append(sinks, s)
		}
	} else {
		seen := make(map[string]struct{}, len(target.principals))
		for _, p := range target.principals {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			if s, ok := h.clients[p]; ok {
				sinks = append(sinks, s)
			}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range sinks {
		if !s.Open() {
			messagesSent.WithLabelValues(string(msg.Type), "closed").Inc()
			continue
		}
		if !s.Enqueue(data) {
			messagesSent.WithLabelValues(string(msg.Type), "dropped").Inc()
			continue
		}
		messagesSent.WithLabelValues(string(msg.Type), "delivered").Inc()
		delivered++
	}
	return delivered
}

// Broadcast sends msg to every registered principal.
func (h *Hub) Broadcast(msg Message) int {
	return h.Send(msg, All())
}

// BroadcastNewAlert announces a newly stored alert.
func (h *Hub) BroadcastNewAlert(alert models.Alert) int {
	return h.Broadcast(Message{Type: TypeNewAlert, Data: alert})
}

// BroadcastStats pushes a fresh dashboard snapshot.
func (h *Hub) BroadcastStats(stats models.DashboardStats) int {
	return h.Broadcast(Message{Type: TypeStatsUpdate, Data: stats})
}

// BroadcastAlertUpdate announces a status change.
func (h *Hub) BroadcastAlertUpdate(id string, status models.AlertStatus) int {
	return h.Broadcast(Message{Type: TypeAlertUpdate, Data: models.AlertStatusChange{ID: id, Status: status}})
}

// BroadcastAttackSource adds a point to the attack map.
func (h *Hub) BroadcastAttackSource(src models.AttackSource) int {
	return h.Broadcast(Message{Type: TypeNewAttackSource, Data: src})
}

// Stats returns hub statistics.
func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"clients": h.Len(),
	}
}
