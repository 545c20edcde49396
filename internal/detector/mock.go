package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results frame by frame.
type MockDetector struct {
	mu     sync.Mutex
	hands  []HandLandmarks
	script [][]HandLandmarks
	err    error
	calls  int
	first  []gocv.Vecb
	config Config
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands returned by every call to Detect that is not
// covered by a script.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetScript sets per-call results: call i returns script[i]. Calls past the
// end of the script fall back to the hands set with SetHands.
func (m *MockDetector) SetScript(script [][]HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = script
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls
	m.calls++

	if frame != nil && !frame.Empty() {
		m.first = append(m.first, frame.GetVecbAt(0, 0))
	}

	if m.err != nil {
		return nil, m.err
	}
	if call < len(m.script) {
		return m.script[call], nil
	}
	return m.hands, nil
}

// Close marks the detector as closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// FirstPixels returns the top-left pixel of every non-empty frame passed to
// Detect, in call order.
func (m *MockDetector) FirstPixels() []gocv.Vecb {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gocv.Vecb(nil), m.first...)
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Config returns the configuration the detector was built with through Factory.
func (m *MockDetector) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Factory returns a Factory that hands out this mock and records the config.
func (m *MockDetector) Factory() Factory {
	return func(config Config) (Detector, error) {
		m.mu.Lock()
		m.config = config
		m.mu.Unlock()
		return m, nil
	}
}

// HandAt returns a preset hand whose fingertips sit at the given normalized
// positions, ordered thumb to pinky. Remaining landmarks are placed on a line
// below the tips so that the hand is well formed.
func HandAt(tips [5]Point3D) HandLandmarks {
	hand := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	hand.Points[Wrist] = Point3D{X: tips[2].X, Y: tips[2].Y + 0.3}
	for f, tipID := range FingertipIDs {
		tip := tips[f]
		for j := 1; j <= 3; j++ {
			hand.Points[tipID-j] = Point3D{X: tip.X, Y: tip.Y + 0.05*float64(j)}
		}
		hand.Points[tipID] = tip
	}

	return hand
}

// PlayingHandLandmarks returns a right hand resting on the keys with all five
// fingertips on a shallow arc, as seen from an overhead camera.
func PlayingHandLandmarks() HandLandmarks {
	return HandAt([5]Point3D{
		{X: 0.40, Y: 0.62, Z: -0.01},
		{X: 0.46, Y: 0.55, Z: -0.02},
		{X: 0.52, Y: 0.53, Z: -0.02},
		{X: 0.58, Y: 0.55, Z: -0.02},
		{X: 0.63, Y: 0.59, Z: -0.01},
	})
}
