package render

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ayusman/nailosophy/internal/overlay"
)

const (
	nearPlane = 0.1
	farPlane  = 1000
)

// Projector maps render-space points to viewport pixels. The visible volume
// spans x in [-aspect, aspect] and y in [-1, 1], matching the mapper's output.
type Projector struct {
	vp   overlay.Viewport
	proj mgl64.Mat4
}

// NewProjector creates a projector for vp.
func NewProjector(vp overlay.Viewport) *Projector {
	p := &Projector{}
	p.Resize(vp)
	return p
}

// Resize recomputes the projection for the new viewport.
func (p *Projector) Resize(vp overlay.Viewport) {
	p.vp = vp
	aspect, err := vp.Aspect()
	if err != nil {
		aspect = 1
	}
	p.proj = mgl64.Ortho(-aspect, aspect, -1, 1, nearPlane, farPlane)
}

// Viewport returns the viewport the projection was computed for.
func (p *Projector) Viewport() overlay.Viewport {
	return p.vp
}

// Matrix returns the current projection matrix.
func (p *Projector) Matrix() mgl64.Mat4 {
	return p.proj
}

// Project converts a render-space point to pixel coordinates with the origin
// at the top left.
func (p *Projector) Project(v mgl64.Vec3) image.Point {
	clip := p.proj.Mul4x1(v.Vec4(1))
	ndc := clip.Vec3().Mul(1 / clip.W())

	x := (ndc.X() + 1) / 2 * float64(p.vp.Width)
	y := (1 - ndc.Y()) / 2 * float64(p.vp.Height)
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}
