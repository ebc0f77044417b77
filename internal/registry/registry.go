// Package registry is the typed repository over the remote monitor
// registry. Every statement is parameterized; no query text is ever built
// from identifiers.
package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"healthwatch/internal/model"
)

var ErrNotFound = errors.New("monitor not found")

// TestMonitorID is the synthetic monitor used to exercise the whole alert
// path end to end.
const TestMonitorID = "healthwatch-test-alert"

type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// ListMonitors returns every monitor, rank-stable by id.
func (r *Registry) ListMonitors(ctx context.Context) ([]model.Monitor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, last_ping, timeout_hours, alert_subject, alert_body
		 FROM monitors ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []model.Monitor
	for rows.Next() {
		var m model.Monitor
		if err := rows.Scan(&m.ID, &m.LastPing, &m.TimeoutHours, &m.AlertSubject, &m.AlertBody); err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

// QueueDepth counts the pending alerts in the remote outbox table.
func (r *Registry) QueueDepth(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count)
	return count, err
}

// RemoveMonitor permanently deletes a monitor record.
func (r *Registry) RemoveMonitor(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PauseMonitor shifts last_ping forward by the given hours, leaving the
// timeout untouched, so the effective death time moves out by exactly
// hours*3600. Pausing never moves a death time backward.
func (r *Registry) PauseMonitor(ctx context.Context, id string, hours int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE monitors SET last_ping = last_ping + $2 * 3600 WHERE id = $1`,
		id, hours)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertTestMonitor plants a synthetic monitor with a zero timeout so the
// remote side's next sweep finds it already expired and generates an alert.
func (r *Registry) UpsertTestMonitor(ctx context.Context, now int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO monitors (id, last_ping, timeout_hours, alert_subject, alert_body)
		 VALUES ($1, $2, 0, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET last_ping = EXCLUDED.last_ping,
		     timeout_hours = 0,
		     alert_subject = EXCLUDED.alert_subject,
		     alert_body = EXCLUDED.alert_body`,
		TestMonitorID, now,
		"Healthwatch test alert",
		"This is a synthetic alert injected with healthwatchctl test-alert. "+
			"If you are reading it in your inbox, the whole pipeline works.")
	return err
}
