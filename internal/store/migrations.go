package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per classify or background invocation
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK(kind IN ('classify', 'background')),
			video_path TEXT NOT NULL,
			output_path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK(status IN ('running', 'done', 'failed')),
			frames INTEGER NOT NULL DEFAULT 0,
			no_hand_frames INTEGER NOT NULL DEFAULT 0,
			records INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		// Fingertips table - mirror of the fingertip CSV rows of a run
		`CREATE TABLE IF NOT EXISTS fingertips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			hand_index INTEGER NOT NULL,
			fingertip_id INTEGER NOT NULL CHECK(fingertip_id IN (4, 8, 12, 16, 20)),
			x REAL NOT NULL,
			y REAL NOT NULL
		)`,

		// No-hand frames table - images written for frames without hands
		`CREATE TABLE IF NOT EXISTS no_hand_frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			path TEXT NOT NULL,
			UNIQUE(run_id, frame_index)
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_fingertips_run_frame ON fingertips(run_id, frame_index)`,
		`CREATE INDEX IF NOT EXISTS idx_no_hand_frames_run_id ON no_hand_frames(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_video_path ON runs(video_path)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
