package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pishield/pishield/pkg/database"
	"github.com/pishield/pishield/pkg/models"
)

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	seedMixed(t, env)

	w := env.do(t, http.MethodGet, "/api/dashboard/stats", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.DashboardStats
	decode(t, w, &stats)
	assert.Equal(t, 5, stats.AttacksBlocked)
	assert.Equal(t, 4, stats.ActiveAlerts)
	assert.Equal(t, models.RiskMedium, stats.RiskLevel)
	assert.Equal(t, 5, stats.DeviceCount)
	assert.Equal(t, 0, stats.BlockedIPCount)
}

func TestChartData(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.seed(t,
		models.Alert{Timestamp: now, Severity: models.SeverityLow, Type: "Port Scan", SourceIP: "1.1.1.1"},
		models.Alert{Timestamp: now, Severity: models.SeverityLow, Type: "Port Scan", SourceIP: "1.1.1.2"},
		models.Alert{Timestamp: now.AddDate(0, 0, -2), Severity: models.SeverityLow, Type: "Port Scan", SourceIP: "1.1.1.3"},
		models.Alert{Timestamp: now.AddDate(0, 0, -10), Severity: models.SeverityLow, Type: "Port Scan", SourceIP: "1.1.1.4"},
	)

	w := env.do(t, http.MethodGet, "/api/dashboard/chart-data?days=3", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)

	var points []chartPoint
	decode(t, w, &points)
	require.Len(t, points, 3)
	assert.Equal(t, now.AddDate(0, 0, -2).Format("Jan 2"), points[0].Date)
	assert.Equal(t, 1, points[0].Attacks)
	assert.Equal(t, 0, points[1].Attacks)
	assert.Equal(t, now.Format("Jan 2"), points[2].Date)
	assert.Equal(t, 2, points[2].Attacks)
}

func TestChartData_Default(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/dashboard/chart-data", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)
	var points []chartPoint
	decode(t, w, &points)
	assert.Len(t, points, 7)
}

func TestChartData_Errors(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"?days=0", "?days=91", "?days=week"} {
		w := env.do(t, http.MethodGet, "/api/dashboard/chart-data"+q, nil, validToken)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	failing := newTestEnv(t, func(d *Deps) {
		d.Store = failingStore{database.NewMemoryStore()}
	})
	w := failing.do(t, http.MethodGet, "/api/dashboard/chart-data", nil, validToken)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAttackSources(t *testing.T) {
	env := newTestEnv(t)
	seeded := seedMixed(t, env)
	env.seed(t, models.Alert{Timestamp: time.Now().UTC(), Severity: models.SeverityCritical, Type: "DDoS Attempt", SourceIP: "8.8.8.8"})

	w := env.do(t, http.MethodGet, "/api/dashboard/attack-sources", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)

	var sources []models.AttackSource
	decode(t, w, &sources)
	require.Len(t, sources, 5)
	assert.Equal(t, "8.8.8.8", sources[0].SourceIP)
	assert.Equal(t, database.UnknownCountry, sources[0].Country)
	assert.Equal(t, seeded[4].ID, sources[1].ID)
}

func TestDevices(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/devices", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Devices []models.Device `json:"devices"`
	}
	decode(t, w, &resp)
	assert.Len(t, resp.Devices, 5)
}
