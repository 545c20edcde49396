// Package metrics exposes Prometheus counters for classify and background runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame results.
const (
	ResultHands  = "hands"
	ResultNoHand = "no_hand"
)

var (
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pianohands_frames_total",
		Help: "Total number of frames classified, by result",
	}, []string{"result"})

	FingertipRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pianohands_fingertip_records_total",
		Help: "Total number of fingertip records written",
	})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pianohands_runs_total",
		Help: "Total number of runs, by kind and status",
	}, []string{"kind", "status"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pianohands_run_duration_seconds",
		Help:    "Duration of a run over one video",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"kind"})
)
