package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/pianohands/internal/app"
	"github.com/ayusman/pianohands/internal/classify"
	"github.com/ayusman/pianohands/internal/config"
	"github.com/ayusman/pianohands/internal/metrics"
	"github.com/ayusman/pianohands/internal/store"
)

const usage = `Usage:
	pianohands classify -video V [-no-hand-dir D] [-records F]
	pianohands background -video V [-out P]
	pianohands runs [-video V]

Settings are read from PIANOHANDS_* environment variables and an optional .env file.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.SetLevel(cfg.Level())

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "classify":
		runClassify(cfg, args)
	case "background":
		runBackground(cfg, args)
	case "runs":
		listRuns(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func runClassify(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	videoPath := fs.String("video", "", "Input video file.")
	noHandDir := fs.String("no-hand-dir", "no_hand_frames", "Directory for frames without hands.")
	records := fs.String("records", "fingertips.csv", "Fingertip CSV output file.")
	fs.Parse(args)
	requireVideo(fs, *videoPath)

	a, cleanup := newApp(cfg)
	defer cleanup()

	if _, err := a.Classify(*videoPath, *noHandDir, *records); err != nil {
		cleanup()
		log.Fatalf("Classification failed: %v", err)
	}

	fmt.Println("Processing complete.")
	fmt.Printf("No-hand frames saved to: %s\n", *noHandDir)
	fmt.Printf("Fingertips saved in: %s\n", *records)
}

func runBackground(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("background", flag.ExitOnError)
	videoPath := fs.String("video", "", "Input video file.")
	out := fs.String("out", "mode.jpg", "Output image file.")
	fs.Parse(args)
	requireVideo(fs, *videoPath)

	a, cleanup := newApp(cfg)
	defer cleanup()

	result, err := a.Background(*videoPath, *out)
	if err != nil {
		cleanup()
		log.Fatalf("Background computation failed: %v", err)
	}

	fmt.Printf("Background frame shape: %dx%dx%d\n", result.Shape.Rows, result.Shape.Cols, result.Shape.Channels)
	fmt.Printf("Background frame saved to: %s\n", *out)
}

func listRuns(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	videoPath := fs.String("video", "", "Only list runs of this video.")
	fs.Parse(args)

	if cfg.DBPath == "" {
		log.Fatal("PIANOHANDS_DB_PATH is not set")
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open run index: %v", err)
	}
	defer st.Close()

	runs, err := st.Runs().List(*videoPath)
	if err != nil {
		st.Close()
		log.Fatalf("Failed to list runs: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tVIDEO\tFRAMES\tNO HAND\tRECORDS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Kind, r.Status, r.VideoPath, r.Frames, r.NoHandFrames, r.Records,
			r.StartedAt.Format(time.RFC3339))
	}
	w.Flush()
}

func requireVideo(fs *flag.FlagSet, videoPath string) {
	if videoPath == "" {
		fmt.Fprintln(os.Stderr, "-video is required")
		fs.Usage()
		os.Exit(2)
	}
}

// newApp builds the application from cfg. The returned cleanup closes the
// run index and metrics server and is safe to call more than once.
func newApp(cfg *config.Config) (*app.App, func()) {
	var closers []func()

	var st *store.Store
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			log.Fatalf("Failed to create index directory: %v", err)
		}
		var err error
		st, err = store.New(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open run index: %v", err)
		}
		closers = append(closers, func() { st.Close() })
		log.WithField("path", cfg.DBPath).Info("Run index enabled")
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.StartServer(cfg.MetricsAddr)
		closers = append(closers, func() { srv.Close() })
	}

	a := app.New(app.Config{
		Store: st,
		Classify: classify.Config{
			Detector:      cfg.Detector(),
			ImageExt:      cfg.ImageExt,
			ProgressEvery: cfg.ProgressEvery,
		},
		Service: cfg.ServiceOptions(),
	})

	done := false
	return a, func() {
		if done {
			return
		}
		done = true
		for _, c := range closers {
			c()
		}
	}
}
