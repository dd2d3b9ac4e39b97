// Package render presents overlay transforms: composited onto camera frames
// with GoCV, or pushed to browser clients over WebSocket.
package render

import (
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"github.com/ayusman/nailosophy/internal/detector"
	"github.com/ayusman/nailosophy/internal/overlay"
)

// Pass is the input of one render pass.
type Pass struct {
	// Frame is the raw camera frame. Renderers must not retain or close it.
	// A nil frame means no camera is delivering; the pass is always hidden.
	Frame *gocv.Mat
	// Transform is the overlay of the first hand.
	Transform overlay.Transform
	// Nails holds one visible transform per detected hand, first hand first.
	Nails  []overlay.Transform
	Result detector.Result
	Facing overlay.FacingMode
}

// nails returns the transforms to draw.
func (p Pass) nails() []overlay.Transform {
	if len(p.Nails) > 0 {
		return p.Nails
	}
	if p.Transform.Visible {
		return []overlay.Transform{p.Transform}
	}
	return nil
}

// Renderer consumes one pass per detection callback.
type Renderer interface {
	Render(p Pass) error
}

// Resizer is implemented by renderers whose projection depends on the viewport.
type Resizer interface {
	Resize(vp overlay.Viewport)
}

// Multi fans a pass out to several renderers.
type Multi []Renderer

// Render runs every renderer, even after a failure, and joins their errors.
func (m Multi) Render(p Pass) error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.Render(p))
	}
	return err
}

// Resize forwards the viewport to every renderer that is a Resizer.
func (m Multi) Resize(vp overlay.Viewport) {
	for _, r := range m {
		if rs, ok := r.(Resizer); ok {
			rs.Resize(vp)
		}
	}
}
