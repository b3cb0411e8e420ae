package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/inference-sim/popsim/sim"
)

// ErrRunNotFound is returned by LoadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Store keeps simulation results in SQLite. Each run gets one row in runs and
// one row per output cell in results; NaN cells are stored as NULL.
type Store struct {
	db   *sql.DB
	path string
}

// RunInfo describes a stored run.
type RunInfo struct {
	ID        string
	Model     string
	CreatedAt time.Time
	Columns   []string
	Subjects  int
	Rows      int
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		path = "popsim.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		created_at TEXT NOT NULL,
		columns TEXT NOT NULL,
		subjects INTEGER NOT NULL,
		nrow INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS results (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		row_index INTEGER NOT NULL,
		col_index INTEGER NOT NULL,
		value REAL,
		PRIMARY KEY (run_id, row_index, col_index)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun stores res in a single transaction and returns the new run id.
func (s *Store) SaveRun(ctx context.Context, model string, res *sim.Result) (runID string, retErr error) {
	runID = uuid.NewString()
	cols, err := json.Marshal(res.Columns)
	if err != nil {
		return "", fmt.Errorf("encode columns: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(run_id, model, created_at, columns, subjects, nrow) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, model, time.Now().UTC().Format(time.RFC3339Nano), string(cols), res.Stats.Subjects, res.Rows(),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results(run_id, row_index, col_index, value) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare results: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for i := 0; i < res.Rows(); i++ {
		for j, v := range res.Row(i) {
			var val any = v
			if math.IsNaN(v) {
				val = nil
			}
			if _, err := stmt.ExecContext(ctx, runID, i, j, val); err != nil {
				return "", fmt.Errorf("insert result (%d, %d): %w", i, j, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	logrus.Infof("Stored run %s (%d rows) in %s", runID, res.Rows(), s.path)
	return runID, nil
}

// Run returns the metadata of a stored run.
func (s *Store) Run(ctx context.Context, runID string) (RunInfo, error) {
	var (
		info    RunInfo
		created string
		cols    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, model, created_at, columns, subjects, nrow FROM runs WHERE run_id = ?`, runID,
	).Scan(&info.ID, &info.Model, &created, &cols, &info.Subjects, &info.Rows)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunInfo{}, fmt.Errorf("select run: %w", err)
	}
	if info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return RunInfo{}, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(cols), &info.Columns); err != nil {
		return RunInfo{}, fmt.Errorf("decode columns: %w", err)
	}
	return info, nil
}

// LoadRun reads back the output matrix of a stored run, row-major.
func (s *Store) LoadRun(ctx context.Context, runID string) (RunInfo, [][]float64, error) {
	info, err := s.Run(ctx, runID)
	if err != nil {
		return RunInfo{}, nil, err
	}
	out := make([][]float64, info.Rows)
	for i := range out {
		out[i] = make([]float64, len(info.Columns))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, col_index, value FROM results WHERE run_id = ?`, runID)
	if err != nil {
		return RunInfo{}, nil, fmt.Errorf("select results: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			i, j int
			v    sql.NullFloat64
		)
		if err := rows.Scan(&i, &j, &v); err != nil {
			return RunInfo{}, nil, fmt.Errorf("scan: %w", err)
		}
		if i >= len(out) || j >= len(info.Columns) {
			return RunInfo{}, nil, fmt.Errorf("result cell (%d, %d) outside %dx%d", i, j, len(out), len(info.Columns))
		}
		if v.Valid {
			out[i][j] = v.Float64
		} else {
			out[i][j] = math.NaN()
		}
	}
	if err := rows.Err(); err != nil {
		return RunInfo{}, nil, err
	}
	return info, out, nil
}
