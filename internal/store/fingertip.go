package store

import (
	"database/sql"

	"github.com/ayusman/pianohands/internal/fingertip"
)

// FingertipRepository stores fingertip records per run.
type FingertipRepository struct {
	db *sql.DB
}

// Fingertips returns the fingertip repository for this store.
func (s *Store) Fingertips() *FingertipRepository {
	return &FingertipRepository{db: s.db}
}

// Insert stores the records of one frame in a single transaction.
func (r *FingertipRepository) Insert(runID string, records []fingertip.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO fingertips (run_id, frame_index, hand_index, fingertip_id, x, y)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(runID, rec.FrameIndex, rec.HandIndex, rec.FingertipID, rec.X, rec.Y); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ByFrame returns the records of one frame in output order.
func (r *FingertipRepository) ByFrame(runID string, frameIndex int) ([]fingertip.Record, error) {
	return r.query(
		`SELECT frame_index, hand_index, fingertip_id, x, y
		 FROM fingertips
		 WHERE run_id = ? AND frame_index = ?
		 ORDER BY id`,
		runID, frameIndex,
	)
}

// ByRun returns every record of a run in output order.
func (r *FingertipRepository) ByRun(runID string) ([]fingertip.Record, error) {
	return r.query(
		`SELECT frame_index, hand_index, fingertip_id, x, y
		 FROM fingertips
		 WHERE run_id = ?
		 ORDER BY id`,
		runID,
	)
}

// CountByRun returns the number of records stored for a run.
func (r *FingertipRepository) CountByRun(runID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM fingertips WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func (r *FingertipRepository) query(query string, args ...any) ([]fingertip.Record, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []fingertip.Record
	for rows.Next() {
		var rec fingertip.Record
		if err := rows.Scan(&rec.FrameIndex, &rec.HandIndex, &rec.FingertipID, &rec.X, &rec.Y); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
