package classify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/pianohands/internal/detector"
	"github.com/ayusman/pianohands/internal/fingertip"
	"github.com/ayusman/pianohands/internal/video"
	"github.com/ayusman/pianohands/internal/videotest"
)

const (
	testRows = 48
	testCols = 64
)

// freshOpener returns an Opener that plays frames from the start on every open.
func freshOpener(frames []*gocv.Mat) video.Opener {
	return func(path string) (video.Source, error) {
		return video.NewMockSource(frames), nil
	}
}

type recordingWriter struct {
	paths []string
	err   error
}

func (w *recordingWriter) write(path string, frame *gocv.Mat) error {
	if w.err != nil {
		return w.err
	}
	w.paths = append(w.paths, path)
	return os.WriteFile(path, frame.ToBytes(), 0644)
}

type recordingIndex struct {
	records []fingertip.Record
	noHand  []int
	calls   int
	err     error
	closed  bool
}

func (x *recordingIndex) Append(records []fingertip.Record) error {
	x.calls++
	if x.err != nil {
		return x.err
	}
	x.records = append(x.records, records...)
	return nil
}

func (x *recordingIndex) AddNoHandFrame(frameIndex int, path string) error {
	x.calls++
	if x.err != nil {
		return x.err
	}
	x.noHand = append(x.noHand, frameIndex)
	return nil
}

func (x *recordingIndex) RunID() string {
	return "run-1"
}

func (x *recordingIndex) Close() error {
	x.closed = true
	return nil
}

func newTestClassifier(frames []*gocv.Mat, det *detector.MockDetector) (*Classifier, *recordingWriter) {
	c := New(DefaultConfig(), freshOpener(frames), det.Factory())
	w := &recordingWriter{}
	c.SetFrameWriter(w.write)
	return c, w
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ImageExt != "jpg" {
		t.Errorf("ImageExt = %q, want jpg", cfg.ImageExt)
	}
	if cfg.ProgressEvery != 100 {
		t.Errorf("ProgressEvery = %d, want 100", cfg.ProgressEvery)
	}
	if cfg.Detector != detector.DefaultConfig() {
		t.Errorf("Detector = %+v, want %+v", cfg.Detector, detector.DefaultConfig())
	}
}

func TestNoHandPath(t *testing.T) {
	tests := []struct {
		index int
		ext   string
		want  string
	}{
		{0, "jpg", "frame_000000.jpg"},
		{42, "jpg", "frame_000042.jpg"},
		{123456, "png", "frame_123456.png"},
		{1234567, "jpg", "frame_1234567.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := NoHandPath("out", tt.index, tt.ext)
			if got != filepath.Join("out", tt.want) {
				t.Errorf("NoHandPath() = %q, want %q", got, filepath.Join("out", tt.want))
			}
		})
	}
}

func TestProcess_ThreeFrameScenario(t *testing.T) {
	frames := videotest.Sequence(3, testRows, testCols, func(i int) (uint8, uint8, uint8) {
		return uint8(i * 50), 0, 0
	})
	defer videotest.CloseAll(frames)

	hand := detector.PlayingHandLandmarks()
	det := detector.NewMockDetector()
	det.SetScript([][]detector.HandLandmarks{nil, {hand}, nil})

	dir := t.TempDir()
	noHandDir := filepath.Join(dir, "no_hands")
	recordPath := filepath.Join(dir, "fingertips.csv")

	c := New(DefaultConfig(), freshOpener(frames), det.Factory())
	result, err := c.Process("25.mp4", noHandDir, recordPath)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.Frames != 3 || result.NoHandFrames != 2 || result.Records != 5 {
		t.Errorf("result = %+v, want 3 frames, 2 no-hand, 5 records", result)
	}

	entries, err := os.ReadDir(noHandDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 || names[0] != "frame_000000.jpg" || names[1] != "frame_000002.jpg" {
		t.Errorf("no-hand images = %v, want [frame_000000.jpg frame_000002.jpg]", names)
	}

	records, err := fingertip.ReadCSV(recordPath)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}
	for i, rec := range records {
		tipID := detector.FingertipIDs[i]
		if rec.FrameIndex != 1 || rec.HandIndex != 0 || rec.FingertipID != tipID {
			t.Errorf("record %d = %+v, want frame 1 hand 0 tip %d", i, rec, tipID)
		}
		wantX := hand.Points[tipID].X * testCols
		wantY := hand.Points[tipID].Y * testRows
		if rec.X != wantX || rec.Y != wantY {
			t.Errorf("record %d at (%v, %v), want (%v, %v)", i, rec.X, rec.Y, wantX, wantY)
		}
	}

	if !det.Closed() {
		t.Error("detector should be closed after processing")
	}
	if det.Config() != detector.DefaultConfig() {
		t.Errorf("detector built with %+v", det.Config())
	}
}

func TestProcess_TwoHands(t *testing.T) {
	frames := videotest.Sequence(2, testRows, testCols, func(int) (uint8, uint8, uint8) { return 1, 2, 3 })
	defer videotest.CloseAll(frames)

	left := detector.PlayingHandLandmarks()
	left.Handedness = "Left"
	right := detector.PlayingHandLandmarks()

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{left, right})

	recordPath := filepath.Join(t.TempDir(), "fingertips.csv")
	c, w := newTestClassifier(frames, det)
	result, err := c.Process("v.mp4", t.TempDir(), recordPath)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.Records != 20 {
		t.Errorf("Records = %d, want 20", result.Records)
	}
	if len(w.paths) != 0 {
		t.Errorf("no images expected, got %v", w.paths)
	}

	records, err := fingertip.ReadCSV(recordPath)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	for i, rec := range records {
		wantFrame := i / 10
		wantHand := (i / 5) % 2
		wantTip := detector.FingertipIDs[i%5]
		if rec.FrameIndex != wantFrame || rec.HandIndex != wantHand || rec.FingertipID != wantTip {
			t.Errorf("record %d = %+v, want frame %d hand %d tip %d", i, rec, wantFrame, wantHand, wantTip)
		}
	}
}

func TestProcess_DetectorSeesRGB(t *testing.T) {
	frame := videotest.SolidFrame(testRows, testCols, 10, 20, 200)
	defer frame.Close()

	det := detector.NewMockDetector()
	c, w := newTestClassifier([]*gocv.Mat{frame}, det)

	dir := t.TempDir()
	if _, err := c.Process("v.mp4", dir, filepath.Join(dir, "r.csv")); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	pixels := det.FirstPixels()
	if len(pixels) != 1 {
		t.Fatalf("detector saw %d frames, want 1", len(pixels))
	}
	if pixels[0][0] != 200 || pixels[0][1] != 20 || pixels[0][2] != 10 {
		t.Errorf("detector pixel = %v, want RGB [200 20 10]", pixels[0])
	}

	// The written no-hand image keeps native order.
	data, err := os.ReadFile(w.paths[0])
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if data[0] != 10 || data[1] != 20 || data[2] != 200 {
		t.Errorf("written pixel = %v, want BGR [10 20 200]", data[:3])
	}
}

func TestProcess_IndicesContiguous(t *testing.T) {
	frames := videotest.Sequence(7, 8, 8, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	hand := detector.PlayingHandLandmarks()
	det := detector.NewMockDetector()
	det.SetScript([][]detector.HandLandmarks{{hand}, nil, {hand}, {hand}, nil, nil, {hand}})

	dir := t.TempDir()
	recordPath := filepath.Join(dir, "r.csv")
	c, w := newTestClassifier(frames, det)
	result, err := c.Process("v.mp4", dir, recordPath)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	records, err := fingertip.ReadCSV(recordPath)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}

	seen := map[int]bool{}
	for _, rec := range records {
		seen[rec.FrameIndex] = true
	}
	for _, p := range w.paths {
		var index int
		fmt.Sscanf(filepath.Base(p), "frame_%06d.jpg", &index)
		if seen[index] {
			t.Errorf("frame %d both written and recorded", index)
		}
		seen[index] = true
	}

	if len(seen) != result.Frames || result.Frames != 7 {
		t.Errorf("frames covered = %d, processed = %d, want 7", len(seen), result.Frames)
	}
	for i := 0; i < 7; i++ {
		if !seen[i] {
			t.Errorf("frame %d missing from both outputs", i)
		}
	}
}

func TestProcess_RerunTruncates(t *testing.T) {
	frames := videotest.Sequence(3, 8, 8, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.PlayingHandLandmarks()})

	dir := t.TempDir()
	recordPath := filepath.Join(dir, "r.csv")
	c, _ := newTestClassifier(frames, det)

	for run := 0; run < 2; run++ {
		if _, err := c.Process("v.mp4", dir, recordPath); err != nil {
			t.Fatalf("run %d: Process() error = %v", run, err)
		}
	}

	records, err := fingertip.ReadCSV(recordPath)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != 15 {
		t.Errorf("got %d records after two runs, want 15", len(records))
	}
}

func TestProcess_EmptyVideo(t *testing.T) {
	det := detector.NewMockDetector()
	c, _ := newTestClassifier(nil, det)

	dir := t.TempDir()
	recordPath := filepath.Join(dir, "r.csv")
	result, err := c.Process("v.mp4", filepath.Join(dir, "frames"), recordPath)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Frames != 0 {
		t.Errorf("Frames = %d, want 0", result.Frames)
	}

	data, err := os.ReadFile(recordPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "frame_index,hand_index,fingertip_id,x,y\n" {
		t.Errorf("record file = %q, want header only", data)
	}
}

func TestProcess_OpenFailureWritesNothing(t *testing.T) {
	det := detector.NewMockDetector()
	open := func(path string) (video.Source, error) {
		return nil, fmt.Errorf("%w: %s", video.ErrOpen, path)
	}
	c := New(DefaultConfig(), open, det.Factory())

	dir := t.TempDir()
	noHandDir := filepath.Join(dir, "frames")
	recordPath := filepath.Join(dir, "r.csv")

	_, err := c.Process("missing.mp4", noHandDir, recordPath)
	if !errors.Is(err, video.ErrOpen) {
		t.Fatalf("Process() error = %v, want ErrOpen", err)
	}

	if _, err := os.Stat(recordPath); !os.IsNotExist(err) {
		t.Error("record file should not be created when the video cannot be opened")
	}
	if _, err := os.Stat(noHandDir); !os.IsNotExist(err) {
		t.Error("no-hand directory should not be created when the video cannot be opened")
	}
	if det.Calls() != 0 {
		t.Error("detector should not be called")
	}
}

func TestProcess_DetectorError(t *testing.T) {
	frames := videotest.Sequence(2, 8, 8, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	src := video.NewMockSource(frames)
	det := detector.NewMockDetector()
	det.SetError(errors.New("service crashed"))

	c := New(DefaultConfig(), src.Opener(nil), det.Factory())
	dir := t.TempDir()
	_, err := c.Process("v.mp4", dir, filepath.Join(dir, "r.csv"))
	if err == nil {
		t.Fatal("Process() should fail when detection fails")
	}

	if !src.Closed() {
		t.Error("source should be closed on error")
	}
	if !det.Closed() {
		t.Error("detector should be closed on error")
	}
}

func TestProcess_FactoryError(t *testing.T) {
	src := video.NewMockSource(nil)
	factory := func(detector.Config) (detector.Detector, error) {
		return nil, detector.ErrScriptNotFound
	}

	c := New(DefaultConfig(), src.Opener(nil), factory)
	dir := t.TempDir()
	_, err := c.Process("v.mp4", dir, filepath.Join(dir, "r.csv"))
	if !errors.Is(err, detector.ErrScriptNotFound) {
		t.Errorf("Process() error = %v, want ErrScriptNotFound", err)
	}
	if !src.Closed() {
		t.Error("source should be closed on error")
	}
}

func TestProcess_WriteFailure(t *testing.T) {
	frames := videotest.Sequence(1, 8, 8, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	det := detector.NewMockDetector()
	c, w := newTestClassifier(frames, det)
	w.err = fmt.Errorf("%w: disk full", ErrWrite)

	dir := t.TempDir()
	_, err := c.Process("v.mp4", dir, filepath.Join(dir, "r.csv"))
	if !errors.Is(err, ErrWrite) {
		t.Errorf("Process() error = %v, want ErrWrite", err)
	}
}

func TestProcess_UnreadableFrameStops(t *testing.T) {
	frames := videotest.Sequence(5, 8, 8, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	src := video.NewMockSource(frames)
	src.FailAt(3, errors.New("corrupt packet"))
	det := detector.NewMockDetector()

	c := New(DefaultConfig(), src.Opener(nil), det.Factory())
	c.SetFrameWriter((&recordingWriter{}).write)

	dir := t.TempDir()
	result, err := c.Process("v.mp4", dir, filepath.Join(dir, "r.csv"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Frames != 3 {
		t.Errorf("Frames = %d, want 3", result.Frames)
	}
}

func TestProcess_Progress(t *testing.T) {
	frames := videotest.Sequence(250, 2, 2, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.PlayingHandLandmarks()})
	c, _ := newTestClassifier(frames, det)

	var reported []int
	c.OnProgress(func(n int) {
		reported = append(reported, n)
	})

	dir := t.TempDir()
	if _, err := c.Process("v.mp4", dir, filepath.Join(dir, "r.csv")); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(reported) != 2 || reported[0] != 100 || reported[1] != 200 {
		t.Errorf("progress = %v, want [100 200]", reported)
	}
}

func TestProcess_MirrorsIndex(t *testing.T) {
	frames := videotest.Sequence(3, 8, 8, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	det := detector.NewMockDetector()
	det.SetScript([][]detector.HandLandmarks{nil, {detector.PlayingHandLandmarks()}, nil})

	c, _ := newTestClassifier(frames, det)
	index := &recordingIndex{}
	c.SetIndex(index)

	dir := t.TempDir()
	if _, err := c.Process("v.mp4", dir, filepath.Join(dir, "r.csv")); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(index.records) != 5 {
		t.Errorf("index got %d records, want 5", len(index.records))
	}
	if len(index.noHand) != 2 || index.noHand[0] != 0 || index.noHand[1] != 2 {
		t.Errorf("index no-hand frames = %v, want [0 2]", index.noHand)
	}
	if !index.closed {
		t.Error("index should be closed with the run")
	}
}

func TestProcess_IndexFailureKeepsRunning(t *testing.T) {
	frames := videotest.Sequence(3, 8, 8, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	det := detector.NewMockDetector()
	det.SetScript([][]detector.HandLandmarks{{detector.PlayingHandLandmarks()}, nil, {detector.PlayingHandLandmarks()}})

	c, w := newTestClassifier(frames, det)
	index := &recordingIndex{err: errors.New("no such table: fingertips")}
	c.SetIndex(index)

	dir := t.TempDir()
	recordPath := filepath.Join(dir, "r.csv")
	result, err := c.Process("v.mp4", dir, recordPath)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.Frames != 3 || result.Records != 10 || len(w.paths) != 1 {
		t.Errorf("result = %+v with %d images, want 3 frames, 10 records, 1 image", result, len(w.paths))
	}

	records, err := fingertip.ReadCSV(recordPath)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != 10 {
		t.Errorf("got %d records, want 10", len(records))
	}

	// Mirroring stops after the first failure.
	if index.calls != 1 {
		t.Errorf("index called %d times, want 1", index.calls)
	}
	if !index.closed {
		t.Error("failed index should be closed")
	}
}

type closeErrDetector struct {
	*detector.MockDetector
}

func (d closeErrDetector) Close() error {
	d.MockDetector.Close()
	return errors.New("landmarker service exited with status 1")
}

func TestProcess_DetectorCloseErrorIsLogged(t *testing.T) {
	frames := videotest.Sequence(2, 8, 8, func(int) (uint8, uint8, uint8) { return 0, 0, 0 })
	defer videotest.CloseAll(frames)

	mock := detector.NewMockDetector()
	mock.SetHands([]detector.HandLandmarks{detector.PlayingHandLandmarks()})
	factory := func(detector.Config) (detector.Detector, error) {
		return closeErrDetector{mock}, nil
	}

	c := New(DefaultConfig(), freshOpener(frames), factory)
	dir := t.TempDir()
	result, err := c.Process("v.mp4", dir, filepath.Join(dir, "r.csv"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Records != 10 {
		t.Errorf("Records = %d, want 10", result.Records)
	}
	if !mock.Closed() {
		t.Error("detector should be closed")
	}
}
