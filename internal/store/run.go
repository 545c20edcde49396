package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// RunKind identifies which tool produced a run.
type RunKind string

const (
	// RunKindClassify is a fingertip extraction run.
	RunKindClassify RunKind = "classify"
	// RunKindBackground is a temporal mode background run.
	RunKindBackground RunKind = "background"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// Run represents one processing invocation over one video.
type Run struct {
	ID           string
	Kind         RunKind
	VideoPath    string
	OutputPath   string
	Status       RunStatus
	Frames       int
	NoHandFrames int
	Records      int
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
}

// RunStats are the counters recorded when a run finishes.
type RunStats struct {
	Frames       int
	NoHandFrames int
	Records      int
}

// RunRepository provides CRUD operations for runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a new running run. An empty ID is replaced with a fresh UUID.
func (r *RunRepository) Create(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = RunStatusRunning
	run.StartedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO runs (id, kind, video_path, output_path, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.VideoPath, run.OutputPath, string(run.Status), run.StartedAt,
	)
	return err
}

// Finish records the final counters and outcome of a run. A nil runErr
// marks the run done, anything else marks it failed.
func (r *RunRepository) Finish(id string, stats RunStats, runErr error) error {
	status := RunStatusDone
	message := ""
	if runErr != nil {
		status = RunStatusFailed
		message = runErr.Error()
	}

	result, err := r.db.Exec(
		`UPDATE runs
		 SET status = ?, frames = ?, no_hand_frames = ?, records = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(status), stats.Frames, stats.NoHandFrames, stats.Records, message, time.Now(), id,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, kind, video_path, output_path, status, frames, no_hand_frames, records, error, started_at, finished_at`

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves runs, newest first. A video path filters to that video.
func (r *RunRepository) List(videoPath string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if videoPath != "" {
		query += ` WHERE video_path = ?`
		args = append(args, videoPath)
	}
	query += ` ORDER BY started_at DESC, id`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Delete removes a run and, through cascading, its fingertips and frames.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var kind, status string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &kind, &run.VideoPath, &run.OutputPath, &status,
		&run.Frames, &run.NoHandFrames, &run.Records, &run.Error, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	run.Kind = RunKind(kind)
	run.Status = RunStatus(status)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}
