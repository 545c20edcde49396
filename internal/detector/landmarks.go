// Package detector provides hand detection interfaces and types for fingertip extraction.
package detector

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// FingertipIDs lists the fingertip landmarks in output order, thumb to pinky.
var FingertipIDs = [5]int{ThumbTip, IndexTip, MiddleTip, RingTip, PinkyTip}

// Point3D represents a landmark position. X and Y are fractions of the frame
// width and height; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Pixel scales the landmark at index to pixel space for a frame of the
// given width and height.
func (h *HandLandmarks) Pixel(index, width, height int) (x, y float64) {
	p := h.Points[index]
	return p.X * float64(width), p.Y * float64(height)
}
