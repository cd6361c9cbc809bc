package sqlite

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/banshee-data/collision.report/internal/fusion/pipeline"
	"github.com/banshee-data/collision.report/internal/timeutil"
)

// Estimate is a stored per-box result. TTC and speed fields are NaN where
// the row holds NULL.
type Estimate struct {
	EstimateID    int64   `json:"estimate_id"`
	RunID         string  `json:"run_id"`
	FrameIndex    int     `json:"frame_index"`
	PrevBoxID     int     `json:"prev_box_id"`
	CurrBoxID     int     `json:"curr_box_id"`
	Votes         int     `json:"votes"`
	LowConfidence bool    `json:"low_confidence"`
	LidarTTC      float64 `json:"lidar_ttc"`
	LidarReason   string  `json:"lidar_reason,omitempty"`
	CameraTTC     float64 `json:"camera_ttc"`
	CameraReason  string  `json:"camera_reason,omitempty"`
	CameraMatches int     `json:"camera_matches"`
	LidarPoints   int     `json:"lidar_points"`
	ClosingSpeed  float64 `json:"closing_speed"`
	CreatedAt     int64   `json:"created_at"`
}

// EstimateStore persists per-box estimates.
type EstimateStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewEstimateStore creates an EstimateStore. A nil clock uses wall-clock time.
func NewEstimateStore(db *sql.DB, clock timeutil.Clock) *EstimateStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &EstimateStore{db: db, clock: clock}
}

// nullable maps NaN and infinities to NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// InsertPair stores the results of one frame pair in a single transaction.
// frameIndex is the index of the current frame. Invalid estimates are stored
// as NULL with their reason.
func (s *EstimateStore) InsertPair(runID string, frameIndex int, results []pipeline.BoxResult) error {
	if len(results) == 0 {
		return nil
	}
	now := s.clock.Now().UnixNano()

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO ttc_estimates (
				run_id, frame_index, prev_box_id, curr_box_id, votes, low_confidence,
				lidar_ttc, lidar_reason, camera_ttc, camera_reason,
				camera_matches, lidar_points, closing_speed, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range results {
			lidar, camera := nullable(r.Lidar.Seconds), nullable(r.Camera.Seconds)
			if !r.Lidar.Valid {
				lidar = sql.NullFloat64{}
			}
			if !r.Camera.Valid {
				camera = sql.NullFloat64{}
			}
			if _, err := stmt.Exec(
				runID, frameIndex, r.PrevBoxID, r.CurrBoxID, r.Votes, r.LowConfidence,
				lidar, nullString(r.Lidar.Reason), camera, nullString(r.Camera.Reason),
				r.CameraMatches, r.LidarPoints, nullable(r.ClosingSpeed), now,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ListByRun returns a run's estimates ordered by frame and previous box ID.
func (s *EstimateStore) ListByRun(runID string) ([]*Estimate, error) {
	rows, err := s.db.Query(`
		SELECT estimate_id, run_id, frame_index, prev_box_id, curr_box_id, votes, low_confidence,
		       lidar_ttc, lidar_reason, camera_ttc, camera_reason,
		       camera_matches, lidar_points, closing_speed, created_at
		FROM ttc_estimates
		WHERE run_id = ?
		ORDER BY frame_index, prev_box_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query estimates: %w", err)
	}
	defer rows.Close()

	var out []*Estimate
	for rows.Next() {
		var e Estimate
		var lidar, camera, speed sql.NullFloat64
		var lidarReason, cameraReason sql.NullString
		if err := rows.Scan(
			&e.EstimateID, &e.RunID, &e.FrameIndex, &e.PrevBoxID, &e.CurrBoxID, &e.Votes, &e.LowConfidence,
			&lidar, &lidarReason, &camera, &cameraReason,
			&e.CameraMatches, &e.LidarPoints, &speed, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		e.LidarTTC = fromNullable(lidar)
		e.CameraTTC = fromNullable(camera)
		e.ClosingSpeed = fromNullable(speed)
		e.LidarReason = lidarReason.String
		e.CameraReason = cameraReason.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ClosingSpeedStats returns the mean closing speed (m/s) over a run's valid
// lidar estimates and how many estimates contributed.
func (s *EstimateStore) ClosingSpeedStats(runID string) (mean float64, n int, err error) {
	var avg sql.NullFloat64
	err = s.db.QueryRow(`
		SELECT AVG(closing_speed), COUNT(closing_speed)
		FROM ttc_estimates
		WHERE run_id = ? AND lidar_ttc IS NOT NULL`, runID).Scan(&avg, &n)
	if err != nil {
		return math.NaN(), 0, fmt.Errorf("closing speed stats: %w", err)
	}
	return fromNullable(avg), n, nil
}
