package overlay

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform positions the nail graphic for one frame.
type Transform struct {
	// Position is in render units: x and y centered on the viewport with y
	// up, x scaled by the aspect ratio.
	Position mgl64.Vec3 `json:"position"`
	// Rotation is about the z axis, in radians.
	Rotation float64 `json:"rotation"`
	// Scale is applied uniformly on all axes.
	Scale   float64 `json:"scale"`
	Visible bool    `json:"visible"`
}

// Hidden is the transform used when no hand is present.
func Hidden() Transform {
	return Transform{}
}

// Matrix returns the model matrix: translation, then z rotation, then scale.
func (t Transform) Matrix() mgl64.Mat4 {
	return mgl64.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).
		Mul4(mgl64.HomogRotate3DZ(t.Rotation)).
		Mul4(mgl64.Scale3D(t.Scale, t.Scale, t.Scale))
}

// Mapper converts landmark features into render-space transforms.
type Mapper struct {
	params Params
}

// NewMapper creates a Mapper with the given calibration.
func NewMapper(params Params) *Mapper {
	return &Mapper{params: params}
}

// Params returns the calibration in use.
func (m *Mapper) Params() Params {
	return m.params
}

// Map produces the transform for one frame. Without a hand the result is
// Hidden. With a hand, an unmeasured viewport yields ErrViewportUnknown.
func (m *Mapper) Map(f Features, ok bool, facing FacingMode, vp Viewport) (Transform, error) {
	if !ok {
		return Hidden(), nil
	}

	aspect, err := vp.Aspect()
	if err != nil {
		return Hidden(), err
	}

	x, y := ToRenderSpace(f.Tip.X, f.Tip.Y, facing)

	return Transform{
		Position: mgl64.Vec3{x * aspect, y + m.params.VerticalOffset, m.params.Depth},
		Rotation: -f.Angle(facing.Mirrored()) - math.Pi/2,
		Scale:    f.ScaleRef * m.params.ScaleMultiplier,
		Visible:  true,
	}, nil
}

// MapAll maps every hand independently. The slice is empty when no hand is
// present.
func (m *Mapper) MapAll(features []Features, facing FacingMode, vp Viewport) ([]Transform, error) {
	transforms := make([]Transform, 0, len(features))
	for _, f := range features {
		t, err := m.Map(f, true, facing, vp)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, t)
	}
	return transforms, nil
}

// ToRenderSpace maps a normalized image point to the centered unit range,
// inverting y and mirroring x for the front camera. No aspect correction is
// applied.
func ToRenderSpace(nx, ny float64, facing FacingMode) (float64, float64) {
	x := nx*2 - 1
	y := -(ny*2 - 1)
	if facing.Mirrored() {
		x = -x
	}
	return x, y
}
