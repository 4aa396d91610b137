package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pishield/pishield/pkg/models"
)

func seedAlerts(t *testing.T, s *MemoryStore) []models.Alert {
	t.Helper()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	in := []models.Alert{
		{Severity: models.SeverityCritical, Type: "SQL Injection Attempt", SourceIP: "10.0.0.1", Timestamp: base},
		{Severity: models.SeverityHigh, Type: "Port Scan", SourceIP: "192.168.1.20", Timestamp: base.Add(time.Hour)},
		{Severity: models.SeverityLow, Type: "Port Scan", SourceIP: "172.16.0.9", Timestamp: base.Add(2 * time.Hour), Status: models.StatusResolved},
		{Severity: models.SeverityMedium, Type: "Brute Force Attack", SourceIP: "10.0.0.77", Timestamp: base.Add(26 * time.Hour), Status: models.StatusInvestigating},
	}
	out := make([]models.Alert, 0, len(in))
	for _, a := range in {
		stored, err := s.InsertAlert(context.Background(), a)
		require.NoError(t, err)
		out = append(out, stored)
	}
	return out
}

func TestMemoryStore_InsertDefaults(t *testing.T) {
	s := NewMemoryStore()
	a, err := s.InsertAlert(context.Background(), models.Alert{Severity: models.SeverityLow, Type: "Port Scan", SourceIP: "1.2.3.4"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, models.StatusNew, a.Status)
	assert.False(t, a.Timestamp.IsZero())
	assert.False(t, a.CreatedAt.IsZero())

	got, err := s.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestMemoryStore_GetAlertNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetAlert(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpdateAlertStatus(t *testing.T) {
	s := NewMemoryStore()
	alerts := seedAlerts(t, s)

	updated, err := s.UpdateAlertStatus(context.Background(), alerts[0].ID, models.StatusInvestigating)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInvestigating, updated.Status)
	assert.NotNil(t, updated.UpdatedAt)

	_, err = s.UpdateAlertStatus(context.Background(), "missing", models.StatusResolved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListAlerts(t *testing.T) {
	s := NewMemoryStore()
	seedAlerts(t, s)
	ctx := context.Background()

	t.Run("default order newest first", func(t *testing.T) {
		got, total, err := s.ListAlerts(ctx, models.AlertFilter{}, models.Page{})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Equal(t, "Brute Force Attack", got[0].Type)
		assert.Equal(t, "SQL Injection Attempt", got[3].Type)
	})

	t.Run("pagination", func(t *testing.T) {
		got, total, err := s.ListAlerts(ctx, models.AlertFilter{}, models.Page{Offset: 2, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, got, 1)
		assert.Equal(t, "192.168.1.20", got[0].SourceIP)
	})

	t.Run("offset past end", func(t *testing.T) {
		got, total, err := s.ListAlerts(ctx, models.AlertFilter{}, models.Page{Offset: 10, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Empty(t, got)
	})

	t.Run("search matches ip or type", func(t *testing.T) {
		got, total, err := s.ListAlerts(ctx, models.AlertFilter{Search: "port"}, models.Page{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, got, 2)

		_, total, err = s.ListAlerts(ctx, models.AlertFilter{Search: "10.0.0"}, models.Page{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("severity sort ascending", func(t *testing.T) {
		got, _, err := s.ListAlerts(ctx, models.AlertFilter{}, models.Page{Sort: models.SortSeverity, Asc: true})
		require.NoError(t, err)
		assert.Equal(t, models.SeverityLow, got[0].Severity)
		assert.Equal(t, models.SeverityCritical, got[3].Severity)
	})
}

func TestMemoryStore_CountAlerts(t *testing.T) {
	s := NewMemoryStore()
	seedAlerts(t, s)
	ctx := context.Background()

	n, err := s.CountAlerts(ctx, models.AlertFilter{ExcludeStatuses: []models.AlertStatus{models.StatusResolved}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountAlerts(ctx, models.AlertFilter{Severities: []models.Severity{models.SeverityCritical, models.SeverityHigh}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountAlerts(ctx, models.AlertFilter{Status: models.StatusInvestigating})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_AlertsPerDay(t *testing.T) {
	s := NewMemoryStore()
	seedAlerts(t, s)

	since := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	got, err := s.AlertsPerDay(context.Background(), since, since.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Count)
	assert.Equal(t, 1, got[1].Count)
	assert.True(t, got[0].Day.Before(got[1].Day))
}

func TestMemoryStore_BlockedIPs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	_, err := s.InsertBlockedIP(ctx, models.BlockedIP{IPAddress: "10.0.0.1", BlockedBy: "user-1"})
	require.NoError(t, err)
	_, err = s.InsertBlockedIP(ctx, models.BlockedIP{IPAddress: "10.0.0.2", ExpiresAt: &past})
	require.NoError(t, err)

	n, err := s.CountActiveBlockedIPs(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	blocked, err := s.IsBlocked(ctx, "10.0.0.1", now)
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = s.IsBlocked(ctx, "10.0.0.2", now)
	require.NoError(t, err)
	assert.False(t, blocked, "expired block is not active")

	list, err := s.ListBlockedIPs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	removed, err := s.DeleteBlockedIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", removed.BlockedBy)

	_, err = s.DeleteBlockedIP(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, ErrNotFound)
}
