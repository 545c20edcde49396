// Package app wires the classifier and background reducer to the run index
// and metrics for the pianohands tools.
package app

import (
	"github.com/ayusman/pianohands/internal/classify"
	"github.com/ayusman/pianohands/internal/detector"
	"github.com/ayusman/pianohands/internal/median"
	"github.com/ayusman/pianohands/internal/store"
	"github.com/ayusman/pianohands/internal/video"
)

// Config holds configuration options for the application.
type Config struct {
	// Store is the optional run index. Nil disables indexing.
	Store *store.Store

	Classify classify.Config

	// Service locates the landmarker service when NewDetector is nil.
	Service detector.ServiceOptions

	// Open defaults to video.OpenFile.
	Open video.Opener

	// NewDetector defaults to MediaPipe detectors built from Service.
	NewDetector detector.Factory

	// OnProgress is called during classification with the frames done so far.
	OnProgress func(videoPath string, frames int)
}

// App runs the pianohands tools over single videos. Separate calls share
// nothing but the store, so videos may be processed concurrently.
type App struct {
	config Config
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.Open == nil {
		config.Open = video.OpenFile
	}
	if config.NewDetector == nil {
		config.NewDetector = detector.MediaPipeFactory(config.Service)
	}

	return &App{config: config}
}

// Classify extracts no-hand frames and fingertip records from one video.
func (a *App) Classify(videoPath, noHandDir, recordPath string) (classify.Result, error) {
	r := a.beginRun(store.RunKindClassify, videoPath, recordPath)

	c := classify.New(a.config.Classify, a.config.Open, a.config.NewDetector)
	if r.indexed {
		c.SetIndex(a.config.Store.Index(r.id))
	}
	if a.config.OnProgress != nil {
		c.OnProgress(func(frames int) {
			a.config.OnProgress(videoPath, frames)
		})
	}

	result, err := c.Process(videoPath, noHandDir, recordPath)
	a.finishRun(r, store.RunStats{
		Frames:       result.Frames,
		NoHandFrames: result.NoHandFrames,
		Records:      result.Records,
	}, err)

	return result, err
}

// Background writes the temporal mode image of one video to outputPath.
func (a *App) Background(videoPath, outputPath string) (median.Result, error) {
	r := a.beginRun(store.RunKindBackground, videoPath, outputPath)

	result, err := median.New(a.config.Open).Reduce(videoPath, outputPath)
	a.finishRun(r, store.RunStats{Frames: result.Frames}, err)

	return result, err
}

// Store returns the run index, or nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}
