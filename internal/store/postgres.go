package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"fleetwatch/internal/models"
)

// PostgresLedger is an AlertLedger backed by Postgres. A partial unique
// index on (device_id, metric) WHERE status IN ('active','acknowledged')
// enforces the one-active-alert invariant at the database boundary.
type PostgresLedger struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id              UUID PRIMARY KEY,
	device_id       TEXT NOT NULL,
	metric          TEXT NOT NULL,
	severity        TEXT NOT NULL,
	status          TEXT NOT NULL,
	value           DOUBLE PRECISION NOT NULL,
	threshold       DOUBLE PRECISION NOT NULL,
	message         TEXT NOT NULL,
	created_at      BIGINT NOT NULL,
	acknowledged_at BIGINT,
	resolved_at     BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS alerts_one_active
	ON alerts (device_id, metric)
	WHERE status IN ('active', 'acknowledged');
`

// NewPostgresLedger opens a connection pool and ensures the schema exists
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &PostgresLedger{db: db}, nil
}

// GetActiveAlert returns the open alert for the identity, or nil
func (l *PostgresLedger) GetActiveAlert(ctx context.Context, deviceID string, metric models.Metric) (*models.Alert, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, device_id, metric, severity, status, value, threshold, message,
		       created_at, COALESCE(acknowledged_at, 0), COALESCE(resolved_at, 0)
		FROM alerts
		WHERE device_id = $1 AND metric = $2 AND status IN ('active', 'acknowledged')`,
		deviceID, string(metric))

	var a models.Alert
	err := row.Scan(&a.ID, &a.DeviceID, &a.Metric, &a.Severity, &a.Status,
		&a.Value, &a.Threshold, &a.Message,
		&a.CreatedAt, &a.AcknowledgedAt, &a.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active alert: %w", err)
	}
	return &a, nil
}

// Upsert inserts the alert or updates the row with the same ID
func (l *PostgresLedger) Upsert(ctx context.Context, alert *models.Alert) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO alerts (id, device_id, metric, severity, status, value, threshold,
		                    message, created_at, acknowledged_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, 0), NULLIF($11, 0))
		ON CONFLICT (id) DO UPDATE SET
			severity        = EXCLUDED.severity,
			status          = EXCLUDED.status,
			value           = EXCLUDED.value,
			threshold       = EXCLUDED.threshold,
			message         = EXCLUDED.message,
			acknowledged_at = EXCLUDED.acknowledged_at,
			resolved_at     = EXCLUDED.resolved_at`,
		alert.ID, alert.DeviceID, string(alert.Metric), string(alert.Severity),
		string(alert.Status), alert.Value, alert.Threshold, alert.Message,
		alert.CreatedAt, alert.AcknowledgedAt, alert.ResolvedAt)
	if err != nil {
		return fmt.Errorf("upsert alert: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (l *PostgresLedger) Close() error {
	return l.db.Close()
}
