package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ServiceScript is the file name of the MediaPipe hand landmarker service.
const ServiceScript = "hand_landmarker_service.py"

// IdleTimeout is how long the service may sit unused before it is stopped.
// It applies only outside video mode: a restarted service has lost its
// tracking state, so video mode keeps the service until Close.
const IdleTimeout = 30 * time.Second

// ErrScriptNotFound is returned when the landmarker service script cannot be located.
var ErrScriptNotFound = errors.New(ServiceScript + " not found")

// ServiceOptions locate the Python landmarker service.
type ServiceOptions struct {
	// Python is the interpreter. Empty means a venv interpreter if one is
	// found, otherwise python3.
	Python string

	// Script is the service script. Empty means search the usual locations.
	Script string

	// Args are passed before the detector flags.
	Args []string

	// Env is appended to the process environment.
	Env []string
}

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Wire protocol, one exchange per frame:
//
//	stdin:  uint32 payload length | uint32 rows | uint32 cols | uint32 channels | pixels
//	stdout: {"hands":[{"points":[{"x":..,"y":..,"z":..}, ...],"handedness":"Left","score":0.9}]}\n
//
// All integers are big-endian. Pixels are the frame bytes in the order the
// caller provides them; the service expects RGB.
type MediaPipeDetector struct {
	config    Config
	opts      ServiceOptions
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config, opts ServiceOptions) (*MediaPipeDetector, error) {
	if opts.Script == "" {
		opts.Script = findServiceScript()
		if opts.Script == "" {
			return nil, ErrScriptNotFound
		}
	}
	if opts.Python == "" {
		opts.Python = findVenvPython()
		if opts.Python == "" {
			opts.Python = "python3"
		}
	}

	return &MediaPipeDetector{
		config: config,
		opts:   opts,
	}, nil
}

// MediaPipeFactory returns a Factory producing MediaPipe detectors with opts.
func MediaPipeFactory(opts ServiceOptions) Factory {
	return func(config Config) (Detector, error) {
		return NewMediaPipeDetector(config, opts)
	}
}

// Detect sends a frame to the service and returns the detected hands.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	if err := writeFrame(d.stdin, frame.Rows(), frame.Cols(), frame.Channels(), frame.ToBytes()); err != nil {
		return nil, err
	}

	hands, err := readHands(d.stdout)
	if err != nil {
		return nil, err
	}

	d.lastUsed = time.Now()
	if !d.config.VideoMode {
		d.resetIdleTimer()
	}

	return hands, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// serviceArgs renders the detector configuration as service flags.
func (d *MediaPipeDetector) serviceArgs() []string {
	args := append([]string{}, d.opts.Args...)
	args = append(args, d.opts.Script,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)
	if !d.config.VideoMode {
		args = append(args, "--static-image-mode")
	}
	return args
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.opts.Python, d.serviceArgs()...)
	if len(d.opts.Env) > 0 {
		d.cmd.Env = append(os.Environ(), d.opts.Env...)
	}

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start landmarker service: %w", err)
	}

	log.WithField("pid", d.cmd.Process.Pid).Debug("landmarker service started")

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.shutdown(); err != nil {
			log.WithError(err).Warn("landmarker service exited with error")
		}
	})
}

// writeFrame writes one length-prefixed frame.
func writeFrame(w io.Writer, rows, cols, channels int, pixels []byte) error {
	header := make([]byte, 16)
	binary.BigEndian.PutUint32(header[0:4], uint32(12+len(pixels)))
	binary.BigEndian.PutUint32(header[4:8], uint32(rows))
	binary.BigEndian.PutUint32(header[8:12], uint32(cols))
	binary.BigEndian.PutUint32(header[12:16], uint32(channels))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(pixels); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// readHands reads one JSON response line.
func readHands(r *bufio.Reader) ([]HandLandmarks, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Hands []jsonHand `json:"hands"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	result := make([]HandLandmarks, len(response.Hands))
	for i, h := range response.Hands {
		result[i] = h.toHandLandmarks()
	}
	return result, nil
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ServiceScript),
		filepath.Join("..", "scripts", ServiceScript),
		filepath.Join(execDir, "scripts", ServiceScript),
		filepath.Join(os.Getenv("HOME"), ".pianohands", "scripts", ServiceScript),
	}
	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".pianohands/venv/bin/python"),
	}
	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	copy(lm.Points[:], h.Points)
	return lm
}
