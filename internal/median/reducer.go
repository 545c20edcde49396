// Package median reduces a video to one background image by taking the
// temporal mode of every pixel channel.
package median

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/pianohands/internal/video"
)

var (
	// ErrEmptySource is returned when the video yields no frames.
	ErrEmptySource = errors.New("video has no frames")

	// ErrShapeMismatch is returned when frames differ in size or channels.
	ErrShapeMismatch = errors.New("frame shape mismatch")

	// ErrUnsupportedFrame is returned for frames that are not 8-bit with
	// 1, 3 or 4 channels.
	ErrUnsupportedFrame = errors.New("unsupported frame type")

	// ErrWrite is returned when the background image cannot be written.
	ErrWrite = errors.New("write background image")
)

// ImageWriter encodes img to path, inferring the format from the extension.
type ImageWriter func(path string, img image.Image) error

// SaveImage is the default ImageWriter.
func SaveImage(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	return nil
}

// Shape is the geometry shared by every frame of a video.
type Shape struct {
	Rows     int
	Cols     int
	Channels int
}

// Result summarizes one reduced video.
type Result struct {
	Frames int
	Shape  Shape
}

// Reducer computes background images.
type Reducer struct {
	open  video.Opener
	write ImageWriter
}

// New creates a Reducer reading videos through open.
func New(open video.Opener) *Reducer {
	return &Reducer{
		open:  open,
		write: SaveImage,
	}
}

// SetImageWriter replaces the image writer.
func (r *Reducer) SetImageWriter(w ImageWriter) {
	r.write = w
}

// Reduce reads every frame of videoPath into memory and writes the
// per-pixel temporal mode to outputPath. The output directory must exist.
// Nothing is written when the video has no frames.
func (r *Reducer) Reduce(videoPath, outputPath string) (Result, error) {
	var result Result
	logger := log.WithField("video", videoPath)

	src, err := r.open(videoPath)
	if err != nil {
		return result, err
	}
	defer src.Close()

	var samples [][]byte
	var readErr error
	for index, frame := range video.Frames(src, &readErr) {
		shape, err := shapeOf(frame)
		if err != nil {
			return result, fmt.Errorf("frame %d: %w", index, err)
		}
		if index == 0 {
			result.Shape = shape
		} else if shape != result.Shape {
			return result, fmt.Errorf("%w: frame %d is %+v, frame 0 is %+v", ErrShapeMismatch, index, shape, result.Shape)
		}

		samples = append(samples, frame.ToBytes())
	}
	if readErr != nil {
		logger.WithError(readErr).WithField("frames", len(samples)).Warn("Stopped at unreadable frame")
	}

	result.Frames = len(samples)
	if result.Frames == 0 {
		return result, fmt.Errorf("%w: %s", ErrEmptySource, videoPath)
	}

	logger.WithField("frames", result.Frames).Info("Computing temporal mode")
	img := toImage(Mode(samples), result.Shape)

	if err := r.write(outputPath, img); err != nil {
		return result, err
	}

	logger.WithField("output", outputPath).Info("Background image saved")
	return result, nil
}

func shapeOf(frame *gocv.Mat) (Shape, error) {
	switch frame.Type() {
	case gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4:
	default:
		return Shape{}, fmt.Errorf("%w: %v", ErrUnsupportedFrame, frame.Type())
	}

	return Shape{
		Rows:     frame.Rows(),
		Cols:     frame.Cols(),
		Channels: frame.Channels(),
	}, nil
}

// toImage converts interleaved native-order pixels to an image. Three and
// four channel data is BGR(A).
func toImage(pixels []byte, shape Shape) image.Image {
	rect := image.Rect(0, 0, shape.Cols, shape.Rows)

	if shape.Channels == 1 {
		img := image.NewGray(rect)
		copy(img.Pix, pixels)
		return img
	}

	img := image.NewNRGBA(rect)
	n := shape.Rows * shape.Cols
	for i := 0; i < n; i++ {
		px := pixels[i*shape.Channels:]
		alpha := uint8(255)
		if shape.Channels == 4 {
			alpha = px[3]
		}
		img.SetNRGBA(i%shape.Cols, i/shape.Cols, color.NRGBA{R: px[2], G: px[1], B: px[0], A: alpha})
	}
	return img
}
