// Package fingertip turns detected hands into fingertip pixel records and
// persists them as an append-only table.
package fingertip

import (
	"github.com/ayusman/pianohands/internal/detector"
)

// Header is the column row of every fingertip table.
var Header = []string{"frame_index", "hand_index", "fingertip_id", "x", "y"}

// Record is one fingertip of one hand in one frame, in pixel coordinates.
type Record struct {
	FrameIndex  int
	HandIndex   int
	FingertipID int
	X           float64
	Y           float64
}

// Extract returns the fingertip records for a frame of the given size.
// Hands keep detector order and become hand indices 0, 1, ...; each hand
// contributes one record per fingertip in detector.FingertipIDs order.
func Extract(frameIndex int, hands []detector.HandLandmarks, width, height int) []Record {
	if len(hands) == 0 {
		return nil
	}

	records := make([]Record, 0, len(hands)*len(detector.FingertipIDs))
	for handIndex := range hands {
		hand := &hands[handIndex]
		for _, tipID := range detector.FingertipIDs {
			x, y := hand.Pixel(tipID, width, height)
			records = append(records, Record{
				FrameIndex:  frameIndex,
				HandIndex:   handIndex,
				FingertipID: tipID,
				X:           x,
				Y:           y,
			})
		}
	}
	return records
}

// Sink receives the records of one frame at a time, in frame order.
type Sink interface {
	// Append persists all records of one frame. They must be durable
	// before Append returns.
	Append(records []Record) error

	// Close flushes and releases the sink.
	Close() error
}
