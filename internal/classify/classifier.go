// Package classify routes every frame of a piano video either to the
// no-hand image directory or to the fingertip record table.
package classify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/pianohands/internal/detector"
	"github.com/ayusman/pianohands/internal/fingertip"
	"github.com/ayusman/pianohands/internal/metrics"
	"github.com/ayusman/pianohands/internal/video"
)

// ErrWrite is returned when a no-hand frame cannot be written.
var ErrWrite = errors.New("write no-hand frame")

// Default settings.
const (
	DefaultImageExt      = "jpg"
	DefaultProgressEvery = 100
)

// FrameWriter encodes a frame to path, inferring the format from the
// extension. The frame is in native BGR order.
type FrameWriter func(path string, frame *gocv.Mat) error

// WriteImage is the default FrameWriter.
func WriteImage(path string, frame *gocv.Mat) error {
	if !gocv.IMWrite(path, *frame) {
		return fmt.Errorf("%w: %s", ErrWrite, path)
	}
	return nil
}

// Index is an optional secondary destination that mirrors a run. Index
// errors never fail a run: the first one is logged and mirroring stops.
type Index interface {
	fingertip.Sink
	AddNoHandFrame(frameIndex int, path string) error
	RunID() string
}

// Config holds classifier settings.
type Config struct {
	Detector      detector.Config
	ImageExt      string
	ProgressEvery int
}

// DefaultConfig returns the settings used for piano performance videos.
func DefaultConfig() Config {
	return Config{
		Detector:      detector.DefaultConfig(),
		ImageExt:      DefaultImageExt,
		ProgressEvery: DefaultProgressEvery,
	}
}

// Result summarizes one processed video.
type Result struct {
	Frames       int
	NoHandFrames int
	Records      int
	NoHandDir    string
	RecordPath   string
}

// Classifier processes videos one at a time. A Classifier may be reused for
// several videos; each call to Process opens its own source and detector.
type Classifier struct {
	config      Config
	open        video.Opener
	newDetector detector.Factory
	writeFrame  FrameWriter
	index       Index
	onProgress  func(frames int)
}

// New creates a Classifier. Zero-valued config fields take their defaults.
func New(config Config, open video.Opener, newDetector detector.Factory) *Classifier {
	if config.ImageExt == "" {
		config.ImageExt = DefaultImageExt
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = DefaultProgressEvery
	}

	return &Classifier{
		config:      config,
		open:        open,
		newDetector: newDetector,
		writeFrame:  WriteImage,
	}
}

// SetFrameWriter replaces the no-hand image writer.
func (c *Classifier) SetFrameWriter(w FrameWriter) {
	c.writeFrame = w
}

// SetIndex mirrors the next runs into idx. Pass nil to stop mirroring.
func (c *Classifier) SetIndex(idx Index) {
	c.index = idx
}

// OnProgress registers fn to be called every ProgressEvery frames with the
// number of frames processed so far.
func (c *Classifier) OnProgress(fn func(frames int)) {
	c.onProgress = fn
}

// NoHandPath returns the image path for a no-hand frame.
func NoHandPath(dir string, frameIndex int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("frame_%06d.%s", frameIndex, ext))
}

// Process classifies every frame of videoPath. Frames without hands are
// written under noHandDir; fingertips of all other frames are written to
// recordPath, which is truncated first. Processing stops normally when the
// video runs out or a frame cannot be decoded.
func (c *Classifier) Process(videoPath, noHandDir, recordPath string) (result Result, err error) {
	result.NoHandDir = noHandDir
	result.RecordPath = recordPath
	logger := log.WithField("video", videoPath)

	src, err := c.open(videoPath)
	if err != nil {
		return result, err
	}
	defer src.Close()

	if p, ok := src.(interface{ Info() video.Info }); ok {
		info := p.Info()
		logger.WithFields(log.Fields{
			"width":  info.Width,
			"height": info.Height,
			"fps":    info.FPS,
			"frames": info.FrameCount,
		}).Info("Video opened")
	}

	if err := os.MkdirAll(noHandDir, 0755); err != nil {
		return result, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	records, err := fingertip.CreateCSV(recordPath)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := records.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	mirror := newMirror(c.index, logger)
	defer mirror.close()

	det, err := c.newDetector(c.config.Detector)
	if err != nil {
		return result, fmt.Errorf("create detector: %w", err)
	}
	defer func() {
		if cerr := det.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Detector did not shut down cleanly")
		}
	}()

	rgb := gocv.NewMat()
	defer rgb.Close()

	var readErr error
	for index, frame := range video.Frames(src, &readErr) {
		toRGB(frame, &rgb)

		hands, err := det.Detect(&rgb)
		if err != nil {
			return result, fmt.Errorf("detect frame %d: %w", index, err)
		}

		if len(hands) == 0 {
			path := NoHandPath(noHandDir, index, c.config.ImageExt)
			if err := c.writeFrame(path, frame); err != nil {
				return result, err
			}
			mirror.addNoHandFrame(index, path)
			result.NoHandFrames++
			metrics.FramesTotal.WithLabelValues(metrics.ResultNoHand).Inc()
			logger.WithField("frame", index).Debug("No hands")
		} else {
			batch := fingertip.Extract(index, hands, frame.Cols(), frame.Rows())
			if err := records.Append(batch); err != nil {
				return result, err
			}
			mirror.append(index, batch)
			result.Records += len(batch)
			metrics.FramesTotal.WithLabelValues(metrics.ResultHands).Inc()
			metrics.FingertipRecordsTotal.Add(float64(len(batch)))
			logger.WithFields(log.Fields{"frame": index, "hands": len(hands)}).Debug("Hands detected")
		}

		result.Frames = index + 1
		if result.Frames%c.config.ProgressEvery == 0 {
			logger.WithField("frames", result.Frames).Info("Processed frames")
			if c.onProgress != nil {
				c.onProgress(result.Frames)
			}
		}
	}

	if readErr != nil {
		logger.WithError(readErr).WithField("frames", result.Frames).Warn("Stopped at unreadable frame")
	}

	return result, nil
}

// toRGB converts a native-order frame into the RGB layout the detector
// expects. Gray frames are expanded to three channels and alpha is dropped.
func toRGB(frame *gocv.Mat, dst *gocv.Mat) {
	switch frame.Channels() {
	case 1:
		gocv.CvtColor(*frame, dst, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(*frame, dst, gocv.ColorRGBAToBGR)
	default:
		gocv.CvtColor(*frame, dst, gocv.ColorBGRToRGB)
	}
}

// mirror forwards one run to an Index until the index first fails.
type mirror struct {
	index  Index
	logger *log.Entry
}

func newMirror(index Index, logger *log.Entry) *mirror {
	m := &mirror{index: index}
	if index != nil {
		m.logger = logger.WithField("run_id", index.RunID())
	}
	return m
}

func (m *mirror) append(frameIndex int, records []fingertip.Record) {
	if m.index == nil {
		return
	}
	if err := m.index.Append(records); err != nil {
		m.fail(frameIndex, err)
	}
}

func (m *mirror) addNoHandFrame(frameIndex int, path string) {
	if m.index == nil {
		return
	}
	if err := m.index.AddNoHandFrame(frameIndex, path); err != nil {
		m.fail(frameIndex, err)
	}
}

func (m *mirror) fail(frameIndex int, err error) {
	m.logger.WithError(err).WithField("frame", frameIndex).Warn("Run index failed, no longer mirroring this run")
	m.close()
}

func (m *mirror) close() {
	if m.index == nil {
		return
	}
	if err := m.index.Close(); err != nil {
		m.logger.WithError(err).Warn("Failed to close run index")
	}
	m.index = nil
}
