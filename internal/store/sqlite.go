package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"forecaster/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RunStore = (*SQLiteStore)(nil)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var migrations = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		ticker      TEXT NOT NULL,
		classifier  TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		start_date  TEXT NOT NULL DEFAULT '',
		end_date    TEXT NOT NULL DEFAULT '',
		split_index INTEGER NOT NULL DEFAULT 0,
		config      TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at)`,
	`CREATE TABLE IF NOT EXISTS evaluations (
		run_id            TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
		partition_name    TEXT NOT NULL,
		row_count         INTEGER NOT NULL,
		final_equity      REAL,
		average_daily     REAL,
		average_weekly    REAL,
		average_monthly   REAL,
		average_quarterly REAL,
		accuracy          REAL,
		precision         REAL,
		recall            REAL,
		f1                REAL,
		PRIMARY KEY (run_id, partition_name)
	)`,
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a run and its evaluations in a single transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, ticker, classifier, status, error, start_date, end_date, split_index, config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Ticker, run.Classifier, string(run.Status), run.Error,
		formatDate(run.Start), formatDate(run.End), run.SplitIndex, run.Config,
		created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for _, e := range run.Evaluations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO evaluations (run_id, partition_name, row_count, final_equity, average_daily, average_weekly,
			   average_monthly, average_quarterly, accuracy, precision, recall, f1)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(e.Partition), e.Rows, nullable(e.FinalEquity),
			nullable(e.AverageDaily), nullable(e.AverageWeekly), nullable(e.AverageMonthly), nullable(e.AverageQuarterly),
			nullable(e.Accuracy), nullable(e.Precision), nullable(e.Recall), nullable(e.F1),
		)
		if err != nil {
			return fmt.Errorf("inserting %s evaluation for run %s: %w", e.Partition, run.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a run and its evaluations by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT partition_name, row_count, final_equity, average_daily, average_weekly, average_monthly,
		   average_quarterly, accuracy, precision, recall, f1
		 FROM evaluations WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[domain.PartitionName]Evaluation)
	for rows.Next() {
		var (
			e    Evaluation
			name string
			vals [9]sql.NullFloat64
		)
		if err := rows.Scan(&name, &e.Rows, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4],
			&vals[5], &vals[6], &vals[7], &vals[8]); err != nil {
			return nil, err
		}
		e.Partition = domain.PartitionName(name)
		e.FinalEquity = fromNullable(vals[0])
		e.AverageDaily = fromNullable(vals[1])
		e.AverageWeekly = fromNullable(vals[2])
		e.AverageMonthly = fromNullable(vals[3])
		e.AverageQuarterly = fromNullable(vals[4])
		e.Accuracy = fromNullable(vals[5])
		e.Precision = fromNullable(vals[6])
		e.Recall = fromNullable(vals[7])
		e.F1 = fromNullable(vals[8])
		byName[e.Partition] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Chronological partition order rather than storage order.
	for _, name := range domain.PartitionNames {
		if e, ok := byName[name]; ok {
			run.Evaluations = append(run.Evaluations, e)
		}
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, up to limit. A
// non-positive limit returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, runSelect+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const runSelect = `SELECT id, ticker, classifier, status, error, start_date, end_date, split_index, config, created_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                  Run
		status             string
		start, end, create string
	)
	if err := sc.Scan(&r.ID, &r.Ticker, &r.Classifier, &status, &r.Error,
		&start, &end, &r.SplitIndex, &r.Config, &create); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)

	var err error
	if r.Start, err = parseDate(start); err != nil {
		return nil, err
	}
	if r.End, err = parseDate(end); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, create); err != nil {
		return nil, fmt.Errorf("run %s created_at: %w", r.ID, err)
	}
	return &r, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return domain.ParseDate(s)
}

// nullable maps NaN and ±Inf to NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
