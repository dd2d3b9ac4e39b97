package overlay

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ayusman/nailosophy/internal/detector"
)

// Features are the geometric reference values extracted from one hand.
type Features struct {
	// Tip is the index fingertip landmark.
	Tip detector.Point3D
	// Joint is the index DIP landmark.
	Joint detector.Point3D
	// Direction points from Joint to Tip in normalized image space.
	Direction mgl64.Vec2
	// ScaleRef is the wrist to middle MCP distance, a proxy for hand size.
	ScaleRef float64
}

// Angle returns the pointing angle of the index finger. When mirrored the x
// component is negated so the angle matches the displayed image.
// A zero direction yields 0.
func (f Features) Angle(mirrored bool) float64 {
	dx, dy := f.Direction.X(), f.Direction.Y()
	if dx == 0 && dy == 0 {
		return 0
	}
	if mirrored {
		dx = -dx
	}
	return math.Atan2(dy, dx)
}

// Extract computes the features of a single hand.
func Extract(hand *detector.HandLandmarks) Features {
	tip := hand.Points[detector.IndexTip]
	joint := hand.Points[detector.IndexDIP]

	return Features{
		Tip:       tip,
		Joint:     joint,
		Direction: mgl64.Vec2{tip.X - joint.X, tip.Y - joint.Y},
		ScaleRef:  detector.Distance2D(hand.Points[detector.Wrist], hand.Points[detector.MiddleMCP]),
	}
}

// Normalize extracts the features of the first detected hand.
// It returns false when the result holds no hand.
func Normalize(result detector.Result) (Features, bool) {
	hand, ok := result.First()
	if !ok {
		return Features{}, false
	}
	return Extract(hand), true
}

// NormalizeAll extracts features for every detected hand, in detection order.
func NormalizeAll(result detector.Result) []Features {
	features := make([]Features, len(result.Hands))
	for i := range result.Hands {
		features[i] = Extract(&result.Hands[i])
	}
	return features
}
