package checks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/netsage/pkg/plugin"
)

// Check represents a registered health check against a host or URL.
type Check struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CheckType       string    `json:"check_type"` // "ping", "tcp", "http"
	Target          string    `json:"target"`     // host, host:port, or URL depending on type
	IntervalSeconds int       `json:"interval_seconds"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CheckResult represents the outcome of a single health check run.
type CheckResult struct {
	ID           int64     `json:"id"`
	CheckID      string    `json:"check_id"`
	Success      bool      `json:"success"`
	LatencyMs    float64   `json:"latency_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Alert represents a triggered monitoring alert.
type Alert struct {
	ID                  string     `json:"id"`
	CheckID             string     `json:"check_id"`
	Severity            string     `json:"severity"` // "warning", "critical"
	Message             string     `json:"message"`
	TriggeredAt         time.Time  `json:"triggered_at"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// migrations defines the checks plugin's schema history.
var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create checks, results, and alerts tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE checks (
					id                TEXT PRIMARY KEY,
					name              TEXT NOT NULL,
					check_type        TEXT NOT NULL,
					target            TEXT NOT NULL,
					interval_seconds  INTEGER NOT NULL DEFAULT 60,
					enabled           INTEGER NOT NULL DEFAULT 1,
					created_at        TIMESTAMP NOT NULL,
					updated_at        TIMESTAMP NOT NULL
				);
				CREATE TABLE check_results (
					id             INTEGER PRIMARY KEY AUTOINCREMENT,
					check_id       TEXT NOT NULL,
					success        INTEGER NOT NULL,
					latency_ms     REAL NOT NULL DEFAULT 0,
					error_message  TEXT NOT NULL DEFAULT '',
					checked_at     TIMESTAMP NOT NULL
				);
				CREATE INDEX idx_check_results_check ON check_results (check_id, checked_at DESC);
				CREATE TABLE check_alerts (
					id                    TEXT PRIMARY KEY,
					check_id              TEXT NOT NULL,
					severity              TEXT NOT NULL,
					message               TEXT NOT NULL,
					triggered_at          TIMESTAMP NOT NULL,
					resolved_at           TIMESTAMP,
					consecutive_failures  INTEGER NOT NULL DEFAULT 0
				);
				CREATE INDEX idx_check_alerts_active ON check_alerts (check_id) WHERE resolved_at IS NULL;
			`)
			return err
		},
	},
}

// CheckStore provides database access for the checks plugin.
type CheckStore struct {
	db *sql.DB
}

// NewCheckStore creates a CheckStore backed by the given database.
func NewCheckStore(db *sql.DB) *CheckStore {
	return &CheckStore{db: db}
}

const checkColumns = "id, name, check_type, target, interval_seconds, enabled, created_at, updated_at"

// InsertCheck inserts a new check.
func (s *CheckStore) InsertCheck(ctx context.Context, c *Check) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (`+checkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.CheckType, c.Target, c.IntervalSeconds,
		boolInt(c.Enabled), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

// UpdateCheck replaces a check's mutable fields.
func (s *CheckStore) UpdateCheck(ctx context.Context, c *Check) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE checks SET name = ?, check_type = ?, target = ?, interval_seconds = ?,
			enabled = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.CheckType, c.Target, c.IntervalSeconds,
		boolInt(c.Enabled), time.Now().UTC(), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update check: %w", err)
	}
	return nil
}

// GetCheck returns a check by ID. Returns nil, nil if not found.
func (s *CheckStore) GetCheck(ctx context.Context, id string) (*Check, error) {
	c, err := scanCheck(s.db.QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get check: %w", err)
	}
	return c, nil
}

// ListChecks returns all checks ordered by creation time.
func (s *CheckStore) ListChecks(ctx context.Context) ([]Check, error) {
	return s.queryChecks(ctx, `SELECT `+checkColumns+` FROM checks ORDER BY created_at`)
}

// ListEnabledChecks returns all enabled checks.
func (s *CheckStore) ListEnabledChecks(ctx context.Context) ([]Check, error) {
	return s.queryChecks(ctx, `SELECT `+checkColumns+` FROM checks WHERE enabled = 1 ORDER BY created_at`)
}

func (s *CheckStore) queryChecks(ctx context.Context, query string) ([]Check, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var checks []Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check row: %w", err)
		}
		checks = append(checks, *c)
	}
	return checks, rows.Err()
}

// DeleteCheck removes a check and its history. Reports whether a row was deleted.
func (s *CheckStore) DeleteCheck(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete check: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		// History cleanup is best effort; pruning catches leftovers.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM check_results WHERE check_id = ?`, id)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM check_alerts WHERE check_id = ?`, id)
	}
	return n > 0, nil
}

// InsertResult records one check run.
func (s *CheckStore) InsertResult(ctx context.Context, r *CheckResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO check_results (check_id, success, latency_ms, error_message, checked_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.CheckID, boolInt(r.Success), r.LatencyMs, r.ErrorMessage, r.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListResults returns results for a check, newest first. limit <= 0 means 100.
func (s *CheckStore) ListResults(ctx context.Context, checkID string, limit int) ([]CheckResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, check_id, success, latency_ms, error_message, checked_at
		FROM check_results WHERE check_id = ? ORDER BY checked_at DESC LIMIT ?`,
		checkID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []CheckResult
	for rows.Next() {
		var r CheckResult
		var successInt int
		if err := rows.Scan(&r.ID, &r.CheckID, &successInt, &r.LatencyMs, &r.ErrorMessage, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		r.Success = successInt != 0
		results = append(results, r)
	}
	return results, rows.Err()
}

// LatestResult returns the most recent result for a check. Nil if none exist.
func (s *CheckStore) LatestResult(ctx context.Context, checkID string) (*CheckResult, error) {
	results, err := s.ListResults(ctx, checkID, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// DeleteOldResults deletes results older than the given time. Returns rows deleted.
func (s *CheckStore) DeleteOldResults(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM check_results WHERE checked_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("delete old results: %w", err)
	}
	return res.RowsAffected()
}

// InsertAlert inserts a new alert.
func (s *CheckStore) InsertAlert(ctx context.Context, a *Alert) error {
	var resolvedAt sql.NullTime
	if a.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *a.ResolvedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO check_alerts (id, check_id, severity, message, triggered_at, resolved_at, consecutive_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CheckID, a.Severity, a.Message, a.TriggeredAt, resolvedAt, a.ConsecutiveFailures,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// GetActiveAlert returns the unresolved alert for a check. Nil if none.
func (s *CheckStore) GetActiveAlert(ctx context.Context, checkID string) (*Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `
		SELECT id, check_id, severity, message, triggered_at, resolved_at, consecutive_failures
		FROM check_alerts WHERE check_id = ? AND resolved_at IS NULL LIMIT 1`, checkID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns alerts, newest first. activeOnly filters to unresolved.
func (s *CheckStore) ListAlerts(ctx context.Context, activeOnly bool, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, check_id, severity, message, triggered_at, resolved_at, consecutive_failures
		FROM check_alerts`
	if activeOnly {
		query += ` WHERE resolved_at IS NULL`
	}
	query += ` ORDER BY triggered_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// ResolveAlert marks an alert as resolved.
func (s *CheckStore) ResolveAlert(ctx context.Context, id string, resolvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE check_alerts SET resolved_at = ? WHERE id = ?`, resolvedAt, id)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheck(row rowScanner) (*Check, error) {
	var c Check
	var enabledInt int
	if err := row.Scan(&c.ID, &c.Name, &c.CheckType, &c.Target, &c.IntervalSeconds,
		&enabledInt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Enabled = enabledInt != 0
	return &c, nil
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var resolvedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.CheckID, &a.Severity, &a.Message,
		&a.TriggeredAt, &resolvedAt, &a.ConsecutiveFailures); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
