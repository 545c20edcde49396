package app

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/pianohands/internal/metrics"
	"github.com/ayusman/pianohands/internal/store"
)

// run tracks one invocation from start to finish.
type run struct {
	id      string
	kind    store.RunKind
	started time.Time
	logger  *log.Entry
	indexed bool
}

// beginRun registers a run in the index when one is configured. Index
// failures are logged and never stop the run itself.
func (a *App) beginRun(kind store.RunKind, videoPath, outputPath string) *run {
	r := &run{
		id:      uuid.New().String(),
		kind:    kind,
		started: time.Now(),
	}
	r.logger = log.WithFields(log.Fields{
		"run_id": r.id,
		"kind":   string(kind),
		"video":  videoPath,
	})

	if a.config.Store != nil {
		err := a.config.Store.Runs().Create(&store.Run{
			ID:         r.id,
			Kind:       kind,
			VideoPath:  videoPath,
			OutputPath: outputPath,
		})
		if err != nil {
			r.logger.WithError(err).Warn("Failed to index run")
		} else {
			r.indexed = true
		}
	}

	r.logger.Info("Run started")
	return r
}

// finishRun records the outcome in the index and metrics.
func (a *App) finishRun(r *run, stats store.RunStats, runErr error) {
	status := store.RunStatusDone
	if runErr != nil {
		status = store.RunStatusFailed
	}

	elapsed := time.Since(r.started)
	metrics.RunsTotal.WithLabelValues(string(r.kind), string(status)).Inc()
	metrics.RunDuration.WithLabelValues(string(r.kind)).Observe(elapsed.Seconds())

	if r.indexed {
		if err := a.config.Store.Runs().Finish(r.id, stats, runErr); err != nil {
			r.logger.WithError(err).Warn("Failed to record run outcome")
		}
	}

	entry := r.logger.WithFields(log.Fields{
		"frames":   stats.Frames,
		"duration": elapsed.Round(time.Millisecond),
	})
	if runErr != nil {
		entry.WithError(runErr).Error("Run failed")
		return
	}
	entry.Info("Run finished")
}
