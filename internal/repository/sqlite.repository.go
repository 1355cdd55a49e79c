package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pulse/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS alert_rules (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	metric      TEXT NOT NULL,
	condition   TEXT NOT NULL,
	threshold   REAL NOT NULL,
	duration    INTEGER NOT NULL DEFAULT 0,
	severity    TEXT NOT NULL,
	enabled     INTEGER NOT NULL DEFAULT 1,
	recipients  TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS automations (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant  TEXT NOT NULL,
	name    TEXT NOT NULL,
	active  INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_automations_tenant ON automations(tenant);
`

// Store persists alert rule definitions and answers workload counts from
// the automations table. The server only reads automations; rows are written
// by the automation service sharing the database file, or via AddAutomation.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRule inserts a rule definition
func (s *Store) SaveRule(ctx context.Context, rule models.AlertRule) error {
	recipients, err := json.Marshal(rule.Recipients)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_rules (id, name, metric, condition, threshold, duration, severity, enabled, recipients, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Metric, string(rule.Condition), rule.Threshold, rule.Duration,
		string(rule.Severity), rule.Enabled, string(recipients), rule.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving rule %s: %w", rule.ID, err)
	}
	return nil
}

// UpdateRuleEnabled flips the enabled flag of a stored rule
func (s *Store) UpdateRuleEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alert_rules SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("updating rule %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule %s not persisted", id)
	}
	return nil
}

// ListRules returns stored rules oldest first
func (s *Store) ListRules(ctx context.Context) ([]models.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, metric, condition, threshold, duration, severity, enabled, recipients, created_at
		 FROM alert_rules ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		var (
			r          models.AlertRule
			condition  string
			severity   string
			recipients string
			createdAt  int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Metric, &condition, &r.Threshold, &r.Duration,
			&severity, &r.Enabled, &recipients, &createdAt); err != nil {
			return nil, err
		}
		r.Condition = models.Condition(condition)
		r.Severity = models.Severity(severity)
		r.CreatedAt = time.UnixMilli(createdAt)
		if err := json.Unmarshal([]byte(recipients), &r.Recipients); err != nil {
			return nil, fmt.Errorf("decoding recipients of rule %s: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// AddAutomation records an automation owned by tenant. The server never
// calls it; it is the write path for tools and tests sharing the store.
func (s *Store) AddAutomation(ctx context.Context, tenant, name string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO automations (tenant, name, active) VALUES (?, ?, ?)`, tenant, name, active)
	return err
}

// CountAutomations returns total and active automations for tenant, or for
// every tenant when tenant is empty
func (s *Store) CountAutomations(ctx context.Context, tenant string) (models.WorkloadCounts, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(active), 0) FROM automations`
	var args []any
	if tenant != "" {
		query += ` WHERE tenant = ?`
		args = append(args, tenant)
	}

	var counts models.WorkloadCounts
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&counts.Total, &counts.Active); err != nil {
		return models.WorkloadCounts{}, fmt.Errorf("counting automations: %w", err)
	}
	return counts, nil
}
