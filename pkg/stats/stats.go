// Package stats owns the SQLite token-usage database behind the dashboard
// queries.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/renlou/orbit/pkg/ids"
)

// Store owns the SQLite database holding usage records.
type Store struct {
	db   *sql.DB
	path string
}

// UsageRecord is one observed upstream request.
type UsageRecord struct {
	ID           string `json:"id,omitempty"`
	TS           int64  `json:"ts"`
	AccountID    string `json:"account_id"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Bucket is one aggregated time slot.
type Bucket struct {
	Bucket       string `json:"bucket"`
	Requests     int64  `json:"requests"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// GroupUsage aggregates usage per account or per model.
type GroupUsage struct {
	Key          string `json:"key"`
	Requests     int64  `json:"requests"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Summary is the dashboard headline row.
type Summary struct {
	Requests     int64 `json:"requests"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
	Accounts     int64 `json:"accounts"`
	Models       int64 `json:"models"`
}

// TrendPoint is one (time slot, series) cell of a trend chart.
type TrendPoint struct {
	Bucket       string `json:"bucket"`
	Series       string `json:"series"`
	Requests     int64  `json:"requests"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Open initializes a SQLite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init ensures pragmas and schema are configured.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS usage_records (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			account_id TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage_records(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_account ON usage_records(account_id, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model, ts);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Record inserts one usage record. Missing ID and timestamp are filled in.
func (s *Store) Record(ctx context.Context, rec UsageRecord) error {
	if rec.AccountID == "" || rec.Model == "" {
		return errors.New("account_id and model required")
	}
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.TS == 0 {
		rec.TS = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records(id, ts, account_id, model, input_tokens, output_tokens) VALUES(?,?,?,?,?,?)`,
		rec.ID, rec.TS, rec.AccountID, rec.Model, rec.InputTokens, rec.OutputTokens)
	return err
}

const (
	hourExpr = `strftime('%Y-%m-%dT%H:00:00Z', ts, 'unixepoch')`
	dayExpr  = `strftime('%Y-%m-%d', ts, 'unixepoch')`
	weekExpr = `strftime('%Y-W%W', ts, 'unixepoch')`
)

// Hourly aggregates the last N hours into hour buckets.
func (s *Store) Hourly(ctx context.Context, hours int64) ([]Bucket, error) {
	return s.buckets(ctx, hourExpr, sinceHours(hours))
}

// Daily aggregates the last N days into day buckets.
func (s *Store) Daily(ctx context.Context, days int64) ([]Bucket, error) {
	return s.buckets(ctx, dayExpr, sinceDays(days))
}

// Weekly aggregates the last N weeks into ISO-week buckets.
func (s *Store) Weekly(ctx context.Context, weeks int64) ([]Bucket, error) {
	return s.buckets(ctx, weekExpr, sinceDays(weeks*7))
}

// ByAccount aggregates the last N hours per account.
func (s *Store) ByAccount(ctx context.Context, hours int64) ([]GroupUsage, error) {
	return s.groups(ctx, "account_id", sinceHours(hours))
}

// ByModel aggregates the last N hours per model.
func (s *Store) ByModel(ctx context.Context, hours int64) ([]GroupUsage, error) {
	return s.groups(ctx, "model", sinceHours(hours))
}

// Summary totals the last N hours.
func (s *Store) Summary(ctx context.Context, hours int64) (Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COUNT(DISTINCT account_id),
		       COUNT(DISTINCT model)
		FROM usage_records WHERE ts >= ?;
	`, sinceHours(hours))
	var sum Summary
	if err := row.Scan(&sum.Requests, &sum.InputTokens, &sum.OutputTokens, &sum.Accounts, &sum.Models); err != nil {
		return Summary{}, err
	}
	sum.TotalTokens = sum.InputTokens + sum.OutputTokens
	return sum, nil
}

// ModelTrendHourly returns per-model hour buckets for the last N hours.
func (s *Store) ModelTrendHourly(ctx context.Context, hours int64) ([]TrendPoint, error) {
	return s.trend(ctx, hourExpr, "model", sinceHours(hours))
}

// ModelTrendDaily returns per-model day buckets for the last N days.
func (s *Store) ModelTrendDaily(ctx context.Context, days int64) ([]TrendPoint, error) {
	return s.trend(ctx, dayExpr, "model", sinceDays(days))
}

// AccountTrendHourly returns per-account hour buckets for the last N hours.
func (s *Store) AccountTrendHourly(ctx context.Context, hours int64) ([]TrendPoint, error) {
	return s.trend(ctx, hourExpr, "account_id", sinceHours(hours))
}

// AccountTrendDaily returns per-account day buckets for the last N days.
func (s *Store) AccountTrendDaily(ctx context.Context, days int64) ([]TrendPoint, error) {
	return s.trend(ctx, dayExpr, "account_id", sinceDays(days))
}

func (s *Store) buckets(ctx context.Context, bucketExpr string, since int64) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s AS bucket,
		       COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0)
		FROM usage_records
		WHERE ts >= ?
		GROUP BY bucket
		ORDER BY bucket;
	`, bucketExpr), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Bucket, 0)
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Bucket, &b.Requests, &b.InputTokens, &b.OutputTokens); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) groups(ctx context.Context, keyCol string, since int64) ([]GroupUsage, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s,
		       COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0)
		FROM usage_records
		WHERE ts >= ?
		GROUP BY %s
		ORDER BY SUM(input_tokens) + SUM(output_tokens) DESC;
	`, keyCol, keyCol), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GroupUsage, 0)
	for rows.Next() {
		var g GroupUsage
		if err := rows.Scan(&g.Key, &g.Requests, &g.InputTokens, &g.OutputTokens); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) trend(ctx context.Context, bucketExpr, seriesCol string, since int64) ([]TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s AS bucket,
		       %s,
		       COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0)
		FROM usage_records
		WHERE ts >= ?
		GROUP BY bucket, %s
		ORDER BY bucket, %s;
	`, bucketExpr, seriesCol, seriesCol, seriesCol), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TrendPoint, 0)
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Bucket, &p.Series, &p.Requests, &p.InputTokens, &p.OutputTokens); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func sinceHours(hours int64) int64 {
	return time.Now().Add(-time.Duration(hours) * time.Hour).Unix()
}

func sinceDays(days int64) int64 {
	return sinceHours(days * 24)
}
