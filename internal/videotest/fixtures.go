// Package videotest builds synthetic frames and videos for tests.
package videotest

import (
	"fmt"

	"gocv.io/x/gocv"
)

// SolidFrame returns a rows x cols BGR frame filled with one color.
// The caller closes the Mat.
func SolidFrame(rows, cols int, b, g, r uint8) *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(b), float64(g), float64(r), 0),
		rows, cols, gocv.MatTypeCV8UC3,
	)
	return &mat
}

// FrameFromBytes builds a frame of the given shape from raw interleaved
// pixel bytes. channels must be 1, 3 or 4.
func FrameFromBytes(rows, cols, channels int, data []byte) (*gocv.Mat, error) {
	var mt gocv.MatType
	switch channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}

	mat, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return nil, fmt.Errorf("build frame: %w", err)
	}
	return &mat, nil
}

// Sequence returns n solid frames; frame i takes its color from colorAt(i).
func Sequence(n, rows, cols int, colorAt func(i int) (b, g, r uint8)) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		b, g, r := colorAt(i)
		frames = append(frames, SolidFrame(rows, cols, b, g, r))
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// WriteVideo encodes frames into an MJPG AVI at path. It returns an error if
// the local OpenCV build has no writer for the codec.
func WriteVideo(path string, frames []*gocv.Mat, fps float64) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to write")
	}

	w, err := gocv.VideoWriterFile(path, "MJPG", fps, frames[0].Cols(), frames[0].Rows(), true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	defer w.Close()

	if !w.IsOpened() {
		return fmt.Errorf("video writer not opened for %s", path)
	}

	for i, f := range frames {
		if err := w.Write(*f); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return nil
}
