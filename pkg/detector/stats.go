package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pishield/pishield/pkg/database"
	"github.com/pishield/pishield/pkg/models"
)

var statsComputations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pishield_stats_computations_total",
		Help: "Dashboard stat computations by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(statsComputations)
}

// riskSampleLimit bounds the recent high/critical listing. Eight such alerts
// already force High, so ten is enough to decide every level.
const riskSampleLimit = 10

// StatsSource is the part of the row store the aggregator reads.
type StatsSource interface {
	database.AlertStore
	database.BlockedIPStore
}

// DeviceCounter reports the size of the device inventory.
type DeviceCounter interface {
	Count() int
}

// StatsConfig sets the time windows of the aggregate queries.
type StatsConfig struct {
	// AttackWindow limits attacksBlocked to recent alerts. 0 counts all alerts.
	AttackWindow time.Duration
	// RiskWindow is how far back high and critical alerts count toward the risk level.
	RiskWindow time.Duration
}

// DefaultStatsConfig returns the default windows.
func DefaultStatsConfig() StatsConfig {
	return StatsConfig{RiskWindow: 24 * time.Hour}
}

// StatsAggregator computes DashboardStats from the row store.
type StatsAggregator struct {
	store   StatsSource
	devices DeviceCounter
	cfg     StatsConfig
	now     func() time.Time
	log     *logrus.Entry
}

// NewStatsAggregator creates an aggregator. devices may be nil.
func NewStatsAggregator(store StatsSource, devices DeviceCounter, cfg StatsConfig, log *logrus.Logger) *StatsAggregator {
	return &StatsAggregator{
		store:   store,
		devices: devices,
		cfg:     cfg,
		now:     time.Now,
		log:     log.WithField("component", "stats"),
	}
}

// Compute runs the four aggregate queries concurrently and combines them.
// Any query failure fails the whole computation.
func (a *StatsAggregator) Compute(ctx context.Context) (models.DashboardStats, error) {
	now := a.now()
	var (
		attacks, active, blocked int
		recent                   []models.Alert
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		filter := models.AlertFilter{}
		if a.cfg.AttackWindow > 0 {
			filter.Since = now.Add(-a.cfg.AttackWindow)
		}
		n, err := a.store.CountAlerts(gctx, filter)
		if err != nil {
			return fmt.Errorf("count alerts: %w", err)
		}
		attacks = n
		return nil
	})
	g.Go(func() error {
		n, err := a.store.CountAlerts(gctx, models.AlertFilter{
			ExcludeStatuses: []models.AlertStatus{models.StatusResolved},
		})
		if err != nil {
			return fmt.Errorf("count active alerts: %w", err)
		}
		active = n
		return nil
	})
	g.Go(func() error {
		n, err := a.store.CountActiveBlockedIPs(gctx, now)
		if err != nil {
			return fmt.Errorf("count blocked ips: %w", err)
		}
		blocked = n
		return nil
	})
	g.Go(func() error {
		filter := models.AlertFilter{
			Severities: []models.Severity{models.SeverityCritical, models.SeverityHigh},
		}
		if a.cfg.RiskWindow > 0 {
			filter.Since = now.Add(-a.cfg.RiskWindow)
		}
		alerts, _, err := a.store.ListAlerts(gctx, filter, models.Page{
			Sort:  models.SortTimestamp,
			Limit: riskSampleLimit,
		})
		if err != nil {
			return fmt.Errorf("list recent alerts: %w", err)
		}
		recent = alerts
		return nil
	})

	if err := g.Wait(); err != nil {
		statsComputations.WithLabelValues("error").Inc()
		a.log.WithError(err).Error("Failed to compute dashboard stats")
		return models.DashboardStats{}, err
	}

	critical, high := 0, 0
	for _, alert := range recent {
		switch alert.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityHigh:
			high++
		}
	}

	deviceCount := 0
	if a.devices != nil {
		deviceCount = a.devices.Count()
	}

	statsComputations.WithLabelValues("ok").Inc()
	return models.DashboardStats{
		AttacksBlocked: attacks,
		ActiveAlerts:   active,
		RiskLevel:      models.RiskFromCounts(critical, high),
		DeviceCount:    deviceCount,
		BlockedIPCount: blocked,
	}, nil
}
