package video

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back pre-built frames for testing.
type MockSource struct {
	frames []*gocv.Mat
	index  int
	err    error
	failAt int
	mu     sync.Mutex
	closed bool
}

// NewMockSource returns a source that yields clones of frames in order.
func NewMockSource(frames []*gocv.Mat) *MockSource {
	return &MockSource{
		frames: frames,
		failAt: -1,
	}
}

// FailAt makes the read at index return err instead of a frame.
func (s *MockSource) FailAt(index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = index
	s.err = err
}

// Read returns a clone of the next frame.
func (s *MockSource) Read() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.index == s.failAt {
		s.index++
		return nil, s.err
	}
	if s.index >= len(s.frames) {
		return nil, ErrExhausted
	}

	// Clone the frame so the original isn't modified
	frame := s.frames[s.index].Clone()
	s.index++

	return &frame, nil
}

// Close marks the source closed. The original frames stay owned by the caller.
func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MockSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Opener returns an Opener that hands out src for any path, recording the
// path it was asked for.
func (s *MockSource) Opener(opened *string) Opener {
	return func(path string) (Source, error) {
		if opened != nil {
			*opened = path
		}
		return s, nil
	}
}
