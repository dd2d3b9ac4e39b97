package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"gocv.io/x/gocv"

	"github.com/ayusman/nailosophy/internal/detector"
	"github.com/ayusman/nailosophy/internal/overlay"
)

// Nail graphic extents in local units, before the transform's scale.
const (
	DefaultNailWidth  = 0.2
	DefaultNailHeight = 0.35
)

var (
	nailColor      = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	connectorColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	landmarkColor  = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	fingertipColor = color.RGBA{R: 0, G: 255, B: 255, A: 255}
)

// CompositorConfig configures the GoCV compositor.
type CompositorConfig struct {
	// Skeleton additionally draws hand connectors, landmark points and a
	// fingertip marker.
	Skeleton   bool
	NailWidth  float64
	NailHeight float64
}

// Compositor draws the nail graphic onto the camera frame. The output is the
// frame resized to the viewport, mirrored for the front camera so preview and
// overlay agree, and kept as the latest JPEG for streaming.
type Compositor struct {
	config    CompositorConfig
	mu        sync.Mutex
	projector *Projector
	latest    []byte
}

// NewCompositor creates a compositor for the given viewport.
func NewCompositor(config CompositorConfig, vp overlay.Viewport) *Compositor {
	if config.NailWidth <= 0 {
		config.NailWidth = DefaultNailWidth
	}
	if config.NailHeight <= 0 {
		config.NailHeight = DefaultNailHeight
	}
	return &Compositor{
		config:    config,
		projector: NewProjector(vp),
	}
}

// Resize recomputes the projection.
func (c *Compositor) Resize(vp overlay.Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projector.Resize(vp)
}

// Render composites one pass. A pass without a frame blanks the preview, so
// streaming clients stop showing the last composite.
func (c *Compositor) Render(p Pass) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Frame == nil {
		return c.blank()
	}
	if p.Frame.Empty() {
		return errors.New("compositor: empty frame")
	}

	vp := c.projector.Viewport()
	if err := vp.Check(); err != nil {
		return err
	}

	out := gocv.NewMat()
	defer out.Close()

	gocv.Resize(*p.Frame, &out, image.Pt(vp.Width, vp.Height), 0, 0, gocv.InterpolationLinear)
	if p.Facing.Mirrored() {
		gocv.Flip(out, &out, 1)
	}

	if c.config.Skeleton {
		for i := range p.Result.Hands {
			c.drawSkeleton(&out, &p.Result.Hands[i], p.Facing)
		}
	}

	for _, t := range p.nails() {
		c.drawNail(&out, t)
	}

	return c.encode(out)
}

// blank replaces the latest composite with a black viewport-sized image. It
// drops the composite while the viewport is unusable. c.mu must be held.
func (c *Compositor) blank() error {
	vp := c.projector.Viewport()
	if vp.Check() != nil {
		c.latest = c.latest[:0]
		return nil
	}

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), vp.Height, vp.Width, gocv.MatTypeCV8UC3)
	defer img.Close()
	return c.encode(img)
}

// encode stores img as the latest JPEG. c.mu must be held.
func (c *Compositor) encode(img gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return fmt.Errorf("encode composite: %w", err)
	}
	defer buf.Close()

	c.latest = append(c.latest[:0], buf.GetBytes()...)
	return nil
}

// NailPolygon returns the projected corners of the nail graphic.
func (c *Compositor) NailPolygon(t overlay.Transform) []image.Point {
	model := t.Matrix()
	hw, hh := c.config.NailWidth/2, c.config.NailHeight/2

	corners := []mgl64.Vec3{{-hw, -hh, 0}, {hw, -hh, 0}, {hw, hh, 0}, {-hw, hh, 0}}
	pts := make([]image.Point, len(corners))
	for i, corner := range corners {
		world := model.Mul4x1(corner.Vec4(1)).Vec3()
		pts[i] = c.projector.Project(world)
	}
	return pts
}

func (c *Compositor) drawNail(img *gocv.Mat, t overlay.Transform) {
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{c.NailPolygon(t)})
	defer pv.Close()

	gocv.FillPoly(img, pv, nailColor)
}

func (c *Compositor) drawSkeleton(img *gocv.Mat, hand *detector.HandLandmarks, facing overlay.FacingMode) {
	toPixel := func(p detector.Point3D) image.Point {
		x := p.X
		if facing.Mirrored() {
			x = 1 - x
		}
		return image.Pt(int(x*float64(img.Cols())), int(p.Y*float64(img.Rows())))
	}

	for _, conn := range detector.HandConnections {
		gocv.Line(img, toPixel(hand.Points[conn[0]]), toPixel(hand.Points[conn[1]]), connectorColor, 2)
	}

	for _, p := range hand.Points {
		gocv.Circle(img, toPixel(p), 3, landmarkColor, -1)
	}

	gocv.Circle(img, toPixel(hand.Points[detector.IndexTip]), 8, fingertipColor, 2)
}

// LatestJPEG returns a copy of the most recent composite.
func (c *Compositor) LatestJPEG() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.latest) == 0 {
		return nil, false
	}
	return append([]byte(nil), c.latest...), true
}
