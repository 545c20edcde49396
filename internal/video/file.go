package video

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Info describes a video as reported by the container. Values are advisory;
// FrameCount in particular is an estimate for some codecs.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
}

// FileSource reads frames from a video file using GoCV.
type FileSource struct {
	path    string
	capture *gocv.VideoCapture
	mu      sync.Mutex
}

// OpenFile opens the video at path. It returns an error wrapping ErrOpen if
// the file cannot be opened or decoded.
func OpenFile(path string) (Source, error) {
	return openFile(path)
}

func openFile(path string) (*FileSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s", ErrOpen, path)
	}

	return &FileSource{
		path:    path,
		capture: capture,
	}, nil
}

// Probe opens the video at path just long enough to read its Info.
func Probe(path string) (Info, error) {
	src, err := openFile(path)
	if err != nil {
		return Info{}, err
	}
	defer src.Close()
	return src.Info(), nil
}

// Info returns the container's view of the video.
func (s *FileSource) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return Info{}
	}
	return Info{
		Width:      int(s.capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(s.capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        s.capture.Get(gocv.VideoCaptureFPS),
		FrameCount: int(s.capture.Get(gocv.VideoCaptureFrameCount)),
	}
}

// Read reads the next frame from the file.
// The caller is responsible for closing the returned Mat.
func (s *FileSource) Read() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, ErrClosed
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrExhausted
	}

	return &mat, nil
}

// Close closes the file and releases decoder resources. Closing twice is a no-op.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}

	err := s.capture.Close()
	s.capture = nil
	return err
}
