// Package database provides the alert and blocked-IP row store.
//
// Two backends implement Store: PostgresStore talks to the Supabase Postgres
// database through lib/pq, MemoryStore keeps rows in process memory for
// development and tests.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/pishield/pishield/pkg/models"
)

// ErrNotFound is returned when a row addressed by id or IP does not exist.
var ErrNotFound = errors.New("not found")

// AlertStore reads and writes alerts.
type AlertStore interface {
	// InsertAlert stores a new alert and returns it with id and timestamps assigned.
	InsertAlert(ctx context.Context, alert models.Alert) (models.Alert, error)
	// GetAlert returns one alert or ErrNotFound.
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	// UpdateAlertStatus sets status and updated_at, returning the new row or ErrNotFound.
	UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus) (models.Alert, error)
	// ListAlerts returns one page of matching alerts plus the total match count.
	ListAlerts(ctx context.Context, filter models.AlertFilter, page models.Page) ([]models.Alert, int, error)
	// CountAlerts returns the number of matching alerts.
	CountAlerts(ctx context.Context, filter models.AlertFilter) (int, error)
	// AlertsPerDay returns per-day alert counts in [since, until), days without alerts omitted.
	AlertsPerDay(ctx context.Context, since, until time.Time) ([]models.DailyCount, error)
}

// BlockedIPStore reads and writes blocked IP records.
type BlockedIPStore interface {
	InsertBlockedIP(ctx context.Context, b models.BlockedIP) (models.BlockedIP, error)
	// DeleteBlockedIP removes every record for ip and returns one of them, or ErrNotFound.
	DeleteBlockedIP(ctx context.Context, ip string) (models.BlockedIP, error)
	// ListBlockedIPs returns all records, newest first.
	ListBlockedIPs(ctx context.Context) ([]models.BlockedIP, error)
	// CountActiveBlockedIPs counts records without expiry or expiring after at.
	CountActiveBlockedIPs(ctx context.Context, at time.Time) (int, error)
	// IsBlocked reports whether an active block exists for ip.
	IsBlocked(ctx context.Context, ip string, at time.Time) (bool, error)
}

// Store is the full row store used by the server.
type Store interface {
	AlertStore
	BlockedIPStore
	Ping(ctx context.Context) error
	Close() error
}
