package store

import (
	"database/sql"

	"github.com/ayusman/pianohands/internal/fingertip"
)

// NoHandFrame is an image written for a frame in which no hand was detected.
type NoHandFrame struct {
	FrameIndex int
	Path       string
}

// NoHandFrameRepository stores no-hand frame paths per run.
type NoHandFrameRepository struct {
	db *sql.DB
}

// NoHandFrames returns the no-hand frame repository for this store.
func (s *Store) NoHandFrames() *NoHandFrameRepository {
	return &NoHandFrameRepository{db: s.db}
}

// Add records a no-hand frame image for a run.
func (r *NoHandFrameRepository) Add(runID string, frameIndex int, path string) error {
	_, err := r.db.Exec(
		`INSERT INTO no_hand_frames (run_id, frame_index, path) VALUES (?, ?, ?)`,
		runID, frameIndex, path,
	)
	return err
}

// ListByRun returns the no-hand frames of a run ordered by frame index.
func (r *NoHandFrameRepository) ListByRun(runID string) ([]NoHandFrame, error) {
	rows, err := r.db.Query(
		`SELECT frame_index, path FROM no_hand_frames WHERE run_id = ? ORDER BY frame_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []NoHandFrame
	for rows.Next() {
		var f NoHandFrame
		if err := rows.Scan(&f.FrameIndex, &f.Path); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return frames, nil
}

// RunIndex mirrors one classify run into the store. It is a fingertip.Sink
// and also records no-hand frame paths.
type RunIndex struct {
	runID      string
	fingertips *FingertipRepository
	frames     *NoHandFrameRepository
}

var _ fingertip.Sink = (*RunIndex)(nil)

// Index returns a RunIndex that writes under runID.
func (s *Store) Index(runID string) *RunIndex {
	return &RunIndex{
		runID:      runID,
		fingertips: s.Fingertips(),
		frames:     s.NoHandFrames(),
	}
}

// RunID returns the run the index writes under.
func (x *RunIndex) RunID() string {
	return x.runID
}

// Append stores the records of one frame.
func (x *RunIndex) Append(records []fingertip.Record) error {
	return x.fingertips.Insert(x.runID, records)
}

// AddNoHandFrame records the image written for a frame without hands.
func (x *RunIndex) AddNoHandFrame(frameIndex int, path string) error {
	return x.frames.Add(x.runID, frameIndex, path)
}

// Close is a no-op; the store owns the connection.
func (x *RunIndex) Close() error {
	return nil
}
