// Package overlay maps hand landmarks to the render-space transform of the
// nail graphic.
package overlay

import (
	"errors"
	"fmt"
	"math"
)

// FacingMode identifies which physical camera is active.
type FacingMode int

const (
	// FacingFront is the selfie camera. Its image is presented mirrored.
	FacingFront FacingMode = iota
	// FacingBack is the environment camera.
	FacingBack
)

// String returns "front" or "back".
func (f FacingMode) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingBack:
		return "back"
	default:
		return fmt.Sprintf("FacingMode(%d)", int(f))
	}
}

// Toggle returns the other facing mode.
func (f FacingMode) Toggle() FacingMode {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// Mirrored reports whether output in this mode is horizontally mirrored.
func (f FacingMode) Mirrored() bool {
	return f == FacingFront
}

// MarshalText implements encoding.TextMarshaler.
func (f FacingMode) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts the browser
// names "user" and "environment" as aliases.
func (f *FacingMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "front", "user":
		*f = FacingFront
	case "back", "environment":
		*f = FacingBack
	default:
		return fmt.Errorf("unknown facing mode %q", text)
	}
	return nil
}

// MaxViewportSide bounds each viewport dimension, in pixels.
const MaxViewportSide = 8192

var (
	// ErrViewportUnknown is returned while the render target has not been measured.
	ErrViewportUnknown = errors.New("viewport size unknown")
	// ErrViewportTooLarge is returned for a side above MaxViewportSide.
	ErrViewportTooLarge = errors.New("viewport too large")
)

// Viewport holds the render target dimensions in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0
}

// Check returns ErrViewportUnknown for an unmeasured viewport and
// ErrViewportTooLarge when a side exceeds MaxViewportSide.
func (v Viewport) Check() error {
	if !v.Valid() {
		return ErrViewportUnknown
	}
	if v.Width > MaxViewportSide || v.Height > MaxViewportSide {
		return ErrViewportTooLarge
	}
	return nil
}

// Aspect returns width/height, or ErrViewportUnknown for an unmeasured viewport.
func (v Viewport) Aspect() (float64, error) {
	if !v.Valid() {
		return 0, ErrViewportUnknown
	}
	return float64(v.Width) / float64(v.Height), nil
}

// Params are the calibration constants of the mapping.
type Params struct {
	// VerticalOffset shifts the anchor from the fingertip landmark down to the
	// center of the nail graphic, in render units.
	VerticalOffset float64 `json:"vertical_offset"`
	// ScaleMultiplier converts the wrist to middle MCP distance into a scale factor.
	ScaleMultiplier float64 `json:"scale_multiplier"`
	// Depth is the fixed z distance from the viewer.
	Depth float64 `json:"depth"`
}

// DefaultParams returns the calibration used when nothing is stored.
func DefaultParams() Params {
	return Params{
		VerticalOffset:  -0.15,
		ScaleMultiplier: 1.8,
		Depth:           -1,
	}
}

// Validate rejects parameters that would produce a degenerate transform.
func (p Params) Validate() error {
	if p.ScaleMultiplier <= 0 || math.IsNaN(p.ScaleMultiplier) || math.IsInf(p.ScaleMultiplier, 0) {
		return fmt.Errorf("scale multiplier must be positive, got %f", p.ScaleMultiplier)
	}
	if math.IsNaN(p.VerticalOffset) || math.IsInf(p.VerticalOffset, 0) {
		return fmt.Errorf("vertical offset must be finite")
	}
	if p.Depth >= 0 || math.IsInf(p.Depth, 0) || math.IsNaN(p.Depth) {
		return fmt.Errorf("depth must be negative, got %f", p.Depth)
	}
	return nil
}
