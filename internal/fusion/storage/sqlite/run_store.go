package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/collision.report/internal/timeutil"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Run is one pass of the pipeline over a recorded sequence.
type Run struct {
	RunID      string          `json:"run_id"`
	Input      string          `json:"input"`
	FrameRate  float64         `json:"frame_rate"`
	FrameCount int             `json:"frame_count"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	CreatedAt  int64           `json:"created_at"` // unix nanoseconds
}

// RunStore persists runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a RunStore. A nil clock uses wall-clock time.
func NewRunStore(db *sql.DB, clock timeutil.Clock) *RunStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RunStore{db: db, clock: clock}
}

// Create inserts run. An empty RunID is replaced with a new UUID and a zero
// CreatedAt with the current time.
func (s *RunStore) Create(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}

	var cfg interface{}
	if len(run.ConfigJSON) > 0 {
		cfg = string(run.ConfigJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO ttc_runs (run_id, input, frame_rate, frame_count, config_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Input, run.FrameRate, run.FrameCount, cfg, run.CreatedAt,
		)
		return err
	})
}

// SetFrameCount records how many frames a run processed.
func (s *RunStore) SetFrameCount(runID string, n int) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`UPDATE ttc_runs SET frame_count = ? WHERE run_id = ?`, n, runID)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

// Get returns a run by ID.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, input, frame_rate, frame_count, config_json, created_at
		FROM ttc_runs
		WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return r, err
}

// List returns all runs, newest first.
func (s *RunStore) List() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, input, frame_rate, frame_count, config_json, created_at
		FROM ttc_runs
		ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var cfg sql.NullString
	if err := sc.Scan(&r.RunID, &r.Input, &r.FrameRate, &r.FrameCount, &cfg, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	return &r, nil
}
