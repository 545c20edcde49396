package fingertip

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
)

// ErrWrite is returned when records cannot be written to a table.
var ErrWrite = errors.New("write fingertip records")

// CSVSink writes fingertip records as comma-separated rows.
type CSVSink struct {
	path string
	file *os.File
	w    *csv.Writer
	rows int
}

// CreateCSV creates the file at path, discarding any previous content, and
// writes the header row.
func CreateCSV(path string) (*CSVSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s := &CSVSink{
		path: path,
		file: file,
		w:    csv.NewWriter(file),
	}

	if err := s.w.Write(Header); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: header: %v", ErrWrite, err)
	}
	if err := s.flush(); err != nil {
		file.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the file the sink writes to.
func (s *CSVSink) Path() string {
	return s.path
}

// Rows returns the number of data rows written so far.
func (s *CSVSink) Rows() int {
	return s.rows
}

// Append writes the records of one frame and flushes them to the file.
func (s *CSVSink) Append(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if err := s.w.Write(formatRecord(r)); err != nil {
			return fmt.Errorf("%w: frame %d: %v", ErrWrite, r.FrameIndex, err)
		}
	}
	if err := s.flush(); err != nil {
		return err
	}

	s.rows += len(records)
	return nil
}

// Close syncs and closes the file.
func (s *CSVSink) Close() error {
	if s.file == nil {
		return nil
	}

	err := s.flush()
	if syncErr := s.file.Sync(); err == nil && syncErr != nil {
		err = fmt.Errorf("%w: sync: %v", ErrWrite, syncErr)
	}
	if closeErr := s.file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: close: %v", ErrWrite, closeErr)
	}
	s.file = nil
	return err
}

func (s *CSVSink) flush() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrWrite, err)
	}
	return nil
}

func formatRecord(r Record) []string {
	return []string{
		strconv.Itoa(r.FrameIndex),
		strconv.Itoa(r.HandIndex),
		strconv.Itoa(r.FingertipID),
		strconv.FormatFloat(r.X, 'f', -1, 64),
		strconv.FormatFloat(r.Y, 'f', -1, 64),
	}
}

// ReadCSV reads a fingertip table written by CSVSink.
func ReadCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(Header)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(row []string) (Record, error) {
	var rec Record
	var err error

	if rec.FrameIndex, err = strconv.Atoi(row[0]); err != nil {
		return rec, fmt.Errorf("frame_index: %w", err)
	}
	if rec.HandIndex, err = strconv.Atoi(row[1]); err != nil {
		return rec, fmt.Errorf("hand_index: %w", err)
	}
	if rec.FingertipID, err = strconv.Atoi(row[2]); err != nil {
		return rec, fmt.Errorf("fingertip_id: %w", err)
	}
	if rec.X, err = strconv.ParseFloat(row[3], 64); err != nil {
		return rec, fmt.Errorf("x: %w", err)
	}
	if rec.Y, err = strconv.ParseFloat(row[4], 64); err != nil {
		return rec, fmt.Errorf("y: %w", err)
	}
	return rec, nil
}
