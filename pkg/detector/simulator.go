package detector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pishield/pishield/pkg/database"
	"github.com/pishield/pishield/pkg/models"
)

var (
	simulatedAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pishield_simulated_alerts_total",
			Help: "Alerts produced by the detection simulator by severity",
		},
		[]string{"severity"},
	)
	simulatorTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pishield_simulator_ticks_total",
			Help: "Simulator ticks by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(simulatedAlerts)
	prometheus.MustRegister(simulatorTicks)
}

// ErrAlreadyRunning is returned by Start on a running simulator.
var ErrAlreadyRunning = errors.New("simulator already running")

// Publisher receives the events of a successful tick.
type Publisher interface {
	BroadcastNewAlert(alert models.Alert) int
	BroadcastAttackSource(src models.AttackSource) int
	BroadcastStats(stats models.DashboardStats) int
}

// StatsComputer produces a dashboard snapshot.
type StatsComputer interface {
	Compute(ctx context.Context) (models.DashboardStats, error)
}

// SimulatorConfig holds simulator settings.
type SimulatorConfig struct {
	Interval    time.Duration
	Probability float64
}

// Simulator produces demo traffic: on each tick it may persist a random
// alert and announce it to connected clients.
type Simulator struct {
	store    database.AlertStore
	pub      Publisher
	stats    StatsComputer
	resolver database.CountryResolver
	cfg      SimulatorConfig
	log      *logrus.Entry

	randMu sync.Mutex
	rand   Rand

	mu      sync.Mutex
	done    chan struct{}
	running atomic.Bool
}

// NewSimulator creates a simulator. resolver may be nil.
func NewSimulator(store database.AlertStore, pub Publisher, stats StatsComputer, resolver database.CountryResolver, cfg SimulatorConfig, log *logrus.Logger) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Probability < 0 || cfg.Probability > 1 {
		cfg.Probability = DefaultProbability
	}
	if resolver == nil {
		resolver = database.NewNullResolver()
	}
	return &Simulator{
		store:    store,
		pub:      pub,
		stats:    stats,
		resolver: resolver,
		cfg:      cfg,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      log.WithField("component", "simulator"),
	}
}

// SetRand replaces the randomness source.
func (s *Simulator) SetRand(r Rand) {
	s.randMu.Lock()
	s.rand = r
	s.randMu.Unlock()
}

// Start begins ticking at the configured interval. Ticks run with a context
// derived from ctx, so cancelling ctx also aborts in-flight store calls.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"interval":    s.cfg.Interval,
		"probability": s.cfg.Probability,
	}).Info("Starting detection simulation")

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Tick(ctx)
			case <-done:
				return
			case <-ctx.Done():
				s.mu.Lock()
				if s.done == done {
					s.running.Store(false)
				}
				s.mu.Unlock()
				return
			}
		}
	}()
	return nil
}

// Stop cancels the timer. A tick already in progress runs to completion.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return
	}
	close(s.done)
	s.done = nil
	s.mu.Unlock()
	s.log.Info("Detection simulation stopped")
}

// Running reports whether the timer is active.
func (s *Simulator) Running() bool {
	return s.running.Load()
}

// Tick runs one simulation step. It returns the stored alert and true when
// an alert was generated and persisted. Errors are logged, never returned.
func (s *Simulator) Tick(ctx context.Context) (models.Alert, bool) {
	candidate, fire := s.draw()
	if !fire {
		simulatorTicks.WithLabelValues("skipped").Inc()
		return models.Alert{}, false
	}

	alert, err := s.store.InsertAlert(ctx, candidate)
	if err != nil {
		simulatorTicks.WithLabelValues("failed").Inc()
		s.log.WithError(err).Error("Error inserting simulated alert")
		return models.Alert{}, false
	}
	simulatorTicks.WithLabelValues("generated").Inc()
	simulatedAlerts.WithLabelValues(string(alert.Severity)).Inc()

	s.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"severity": alert.Severity,
		"type":     alert.Type,
		"source":   alert.SourceIP,
	}).Info("Simulated alert inserted")

	s.pub.BroadcastNewAlert(alert)
	s.pub.BroadcastAttackSource(models.AttackSource{
		ID:        alert.ID,
		SourceIP:  alert.SourceIP,
		Country:   database.ResolveOrUnknown(s.resolver, alert.SourceIP),
		Timestamp: alert.Timestamp,
		Severity:  alert.Severity,
	})

	stats, err := s.stats.Compute(ctx)
	if err != nil {
		s.log.WithError(err).Error("Error updating stats after simulated alert")
		return alert, true
	}
	s.pub.BroadcastStats(stats)
	return alert, true
}

// draw decides whether this tick fires and, if so, builds the alert.
func (s *Simulator) draw() (models.Alert, bool) {
	s.randMu.Lock()
	defer s.randMu.Unlock()

	if s.rand.Float64() >= s.cfg.Probability {
		return models.Alert{}, false
	}

	severity := weightedSeverity(s.rand)
	attackType := AttackTypes[s.rand.Intn(len(AttackTypes))]
	ip := fmt.Sprintf("%d.%d.%d.%d",
		s.rand.Intn(256), s.rand.Intn(256), s.rand.Intn(256), s.rand.Intn(256))
	port := s.rand.Intn(65536)

	return models.Alert{
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Type:      attackType,
		SourceIP:  ip,
		DestPort:  models.IntPtr(port),
		Status:    models.StatusNew,
		Details:   simulatedDetails,
	}, true
}

// Stats returns simulator statistics.
func (s *Simulator) Stats() map[string]interface{} {
	return map[string]interface{}{
		"running":     s.running.Load(),
		"interval":    s.cfg.Interval.String(),
		"probability": s.cfg.Probability,
	}
}
