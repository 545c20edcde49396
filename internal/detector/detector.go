package detector

import "gocv.io/x/gocv"

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes an RGB frame and returns detected hand landmarks in
	// detector order. Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Factory builds a fresh detector for one video. Detectors running in video
// mode carry tracking state between frames, so an instance must not be
// shared across videos.
type Factory func(config Config) (Detector, error)

// Config holds configuration options for hand detection.
type Config struct {
	// VideoMode enables inter-frame tracking instead of treating every
	// frame as an independent image.
	VideoMode bool

	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns the configuration used for piano performance videos.
func DefaultConfig() Config {
	return Config{
		VideoMode:       true,
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
