package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/pishield/pishield/pkg/models"
)

// Schema creates the tables used by PostgresStore. Supabase projects already
// have them; EnsureSchema is for standalone Postgres deployments.
const Schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id               uuid PRIMARY KEY,
	alert_timestamp  timestamptz NOT NULL DEFAULT now(),
	severity         text NOT NULL,
	type             text NOT NULL,
	source_ip        inet NOT NULL,
	destination_port integer,
	status           text NOT NULL DEFAULT 'new',
	details          text,
	created_at       timestamptz NOT NULL DEFAULT now(),
	updated_at       timestamptz
);
CREATE INDEX IF NOT EXISTS alerts_timestamp_idx ON alerts (alert_timestamp DESC);
CREATE TABLE IF NOT EXISTS blocked_ips (
	id                 uuid PRIMARY KEY,
	ip_address         inet NOT NULL,
	blocked_by_user_id text,
	reason             text,
	expires_at         timestamptz,
	created_at         timestamptz NOT NULL DEFAULT now()
);
`

const alertColumns = `id, alert_timestamp, severity, type, host(source_ip), destination_port, status, details, created_at, updated_at`

const blockedColumns = `id, host(ip_address), blocked_by_user_id, reason, expires_at, created_at`

// severityOrder sorts by risk instead of alphabetically.
const severityOrder = `CASE severity WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewPostgresStore opens and verifies a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string, log *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info("Connected to PostgreSQL database")
	return NewPostgresStoreFromDB(db, log), nil
}

// NewPostgresStoreFromDB wraps an existing pool.
func NewPostgresStoreFromDB(db *sql.DB, log *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log.WithField("component", "postgres")}
}

// DB exposes the pool for components sharing the connection (e.g. DatabaseResolver).
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates missing tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) InsertAlert(ctx context.Context, alert models.Alert) (models.Alert, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.Status == "" {
		alert.Status = models.StatusNew
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO alerts (id, alert_timestamp, severity, type, source_ip, destination_port, status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+alertColumns,
		alert.ID, alert.Timestamp, string(alert.Severity), alert.Type, alert.SourceIP,
		nullInt(alert.DestPort), string(alert.Status), nullString(alert.Details),
	)
	out, err := scanAlert(row)
	if err != nil {
		return models.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Alert{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	out, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Alert{}, ErrNotFound
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("get alert %s: %w", id, err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus) (models.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Alert{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE alerts SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+alertColumns,
		string(status), time.Now().UTC(), id,
	)
	out, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Alert{}, ErrNotFound
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("update alert %s: %w", id, err)
	}
	return out, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter models.AlertFilter, page models.Page) ([]models.Alert, int, error) {
	total, err := s.CountAlerts(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	where, args := buildAlertWhere(filter)
	query := `SELECT ` + alertColumns + ` FROM alerts` + where + buildOrderLimit(page, len(args)+1)
	if page.Limit > 0 {
		args = append(args, page.Limit, page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, total, nil
}

func (s *PostgresStore) CountAlerts(ctx context.Context, filter models.AlertFilter) (int, error) {
	where, args := buildAlertWhere(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AlertsPerDay(ctx context.Context, since, until time.Time) ([]models.DailyCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('day', alert_timestamp AT TIME ZONE 'UTC') AS day, COUNT(*)
		FROM alerts
		WHERE alert_timestamp >= $1 AND alert_timestamp < $2
		GROUP BY day
		ORDER BY day
	`, since, until)
	if err != nil {
		return nil, fmt.Errorf("alerts per day: %w", err)
	}
	defer rows.Close()

	var out []models.DailyCount
	for rows.Next() {
		var dc models.DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		dc.Day = time.Date(dc.Day.Year(), dc.Day.Month(), dc.Day.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertBlockedIP(ctx context.Context, b models.BlockedIP) (models.BlockedIP, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO blocked_ips (id, ip_address, blocked_by_user_id, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+blockedColumns,
		b.ID, b.IPAddress, nullString(b.BlockedBy), nullString(b.Reason), pq.NullTime{Time: deref(b.ExpiresAt), Valid: b.ExpiresAt != nil}, b.CreatedAt,
	)
	out, err := scanBlocked(row)
	if err != nil {
		return models.BlockedIP{}, fmt.Errorf("insert blocked ip: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteBlockedIP(ctx context.Context, ip string) (models.BlockedIP, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM blocked_ips WHERE ip_address = $1 RETURNING `+blockedColumns, ip)
	if err != nil {
		return models.BlockedIP{}, fmt.Errorf("delete blocked ip: %w", err)
	}
	defer rows.Close()

	var (
		first models.BlockedIP
		found bool
	)
	for rows.Next() {
		b, err := scanBlocked(rows)
		if err != nil {
			return models.BlockedIP{}, fmt.Errorf("scan blocked ip: %w", err)
		}
		if !found {
			first, found = b, true
		}
	}
	if err := rows.Err(); err != nil {
		return models.BlockedIP{}, fmt.Errorf("delete blocked ip: %w", err)
	}
	if !found {
		return models.BlockedIP{}, ErrNotFound
	}
	return first, nil
}

func (s *PostgresStore) ListBlockedIPs(ctx context.Context) ([]models.BlockedIP, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+blockedColumns+` FROM blocked_ips ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list blocked ips: %w", err)
	}
	defer rows.Close()

	out := make([]models.BlockedIP, 0)
	for rows.Next() {
		b, err := scanBlocked(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocked ip: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountActiveBlockedIPs(ctx context.Context, at time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blocked_ips WHERE expires_at IS NULL OR expires_at > $1`, at,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count blocked ips: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) IsBlocked(ctx context.Context, ip string, at time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_ips
			WHERE ip_address = $1 AND (expires_at IS NULL OR expires_at > $2)
		)`, ip, at,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe blocked ip: %w", err)
	}
	return exists, nil
}

// buildAlertWhere renders filter as a WHERE clause with $n placeholders.
func buildAlertWhere(f models.AlertFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Severities) > 0 {
		sev := make([]string, len(f.Severities))
		for i, s := range f.Severities {
			sev[i] = string(s)
		}
		conds = append(conds, "severity = ANY("+next(pq.Array(sev))+")")
	}
	if f.Status != "" {
		conds = append(conds, "status = "+next(string(f.Status)))
	}
	if len(f.ExcludeStatuses) > 0 {
		st := make([]string, len(f.ExcludeStatuses))
		for i, s := range f.ExcludeStatuses {
			st[i] = string(s)
		}
		conds = append(conds, "NOT (status = ANY("+next(pq.Array(st))+"))")
	}
	if f.Search != "" {
		p := next("%" + escapeLike(f.Search) + "%")
		conds = append(conds, "(host(source_ip) ILIKE "+p+" OR type ILIKE "+p+")")
	}
	if !f.Since.IsZero() {
		conds = append(conds, "alert_timestamp >= "+next(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "alert_timestamp < "+next(f.Until))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildOrderLimit renders ORDER BY plus LIMIT/OFFSET placeholders starting at argN.
func buildOrderLimit(page models.Page, argN int) string {
	col, ok := models.SortColumns[page.Sort]
	if !ok {
		col = models.SortColumns[models.SortTimestamp]
	}
	if page.Sort == models.SortSeverity {
		col = severityOrder
	}
	dir := "DESC"
	if page.Asc {
		dir = "ASC"
	}
	clause := fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
	if page.Limit > 0 {
		clause += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
	}
	return clause
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scanner) (models.Alert, error) {
	var (
		a         models.Alert
		severity  string
		status    string
		destPort  sql.NullInt64
		details   sql.NullString
		updatedAt pq.NullTime
	)
	err := row.Scan(&a.ID, &a.Timestamp, &severity, &a.Type, &a.SourceIP, &destPort, &status, &details, &a.CreatedAt, &updatedAt)
	if err != nil {
		return models.Alert{}, err
	}
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	if destPort.Valid {
		a.DestPort = models.IntPtr(int(destPort.Int64))
	}
	a.Details = details.String
	if updatedAt.Valid {
		t := updatedAt.Time
		a.UpdatedAt = &t
	}
	return a, nil
}

func scanBlocked(row scanner) (models.BlockedIP, error) {
	var (
		b         models.BlockedIP
		blockedBy sql.NullString
		reason    sql.NullString
		expiresAt pq.NullTime
	)
	if err := row.Scan(&b.ID, &b.IPAddress, &blockedBy, &reason, &expiresAt, &b.CreatedAt); err != nil {
		return models.BlockedIP{}, err
	}
	b.BlockedBy = blockedBy.String
	b.Reason = reason.String
	if expiresAt.Valid {
		t := expiresAt.Time
		b.ExpiresAt = &t
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
