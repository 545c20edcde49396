// Package video provides forward-only frame sources backed by GoCV (OpenCV).
package video

import (
	"errors"
	"iter"

	"gocv.io/x/gocv"
)

var (
	// ErrOpen is returned when a video source cannot be opened.
	ErrOpen = errors.New("cannot open video source")

	// ErrExhausted is returned by Read once no further frame can be read.
	ErrExhausted = errors.New("video source exhausted")

	// ErrClosed is returned when reading from a source that is not open.
	ErrClosed = errors.New("video source is closed")
)

// Source is a sequential frame reader. Frames come back in decode order and
// in the source's native channel order (BGR for color video). There is no
// seeking; re-open the video to start over.
type Source interface {
	// Read returns the next frame. The caller owns the returned Mat and must
	// close it. Read returns ErrExhausted at the end of the stream or on an
	// unreadable frame.
	Read() (*gocv.Mat, error)

	// Close releases the underlying decoder.
	Close() error
}

// Opener opens a video by path.
type Opener func(path string) (Source, error)

// Frames adapts src to a lazy sequence of (index, frame) pairs starting at 0.
// The frame is closed when the loop body returns, so callers that need it
// longer must clone it. The sequence ends at exhaustion; any other read
// error is stored in *errp. Frames does not close src.
func Frames(src Source, errp *error) iter.Seq2[int, *gocv.Mat] {
	return func(yield func(int, *gocv.Mat) bool) {
		for index := 0; ; index++ {
			frame, err := src.Read()
			if err != nil {
				if !errors.Is(err, ErrExhausted) && errp != nil {
					*errp = err
				}
				return
			}

			more := yield(index, frame)
			frame.Close()
			if !more {
				return
			}
		}
	}
}
