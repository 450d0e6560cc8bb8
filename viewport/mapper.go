package viewport

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Triple is an ordered (x, y, z) value in the authoring application's
// right-handed Z-up convention.
type Triple [3]float32

// Euler is a rotation in the viewport's Y-up convention.
type Euler struct {
	X     float32
	Y     float32
	Z     float32
	Order mgl32.RotationOrder
}

// Quat returns the orientation described by e. Only ZYX order is produced
// by ToEuler; it composes as Rz * Ry * Rx.
func (e Euler) Quat() mgl32.Quat {
	switch e.Order {
	case mgl32.XYZ:
		return mgl32.AnglesToQuat(e.X, e.Y, e.Z, mgl32.XYZ)
	default:
		return mgl32.AnglesToQuat(e.Z, e.Y, e.X, mgl32.ZYX)
	}
}

// ToVector converts a position or direction: (x, y, z) -> (x, z, -y).
func ToVector(v Triple) mgl32.Vec3 {
	return mgl32.Vec3{v[0], v[2], -v[1]}
}

// ToScale swaps the Y and Z axes without negating either.
func ToScale(s Triple) mgl32.Vec3 {
	return mgl32.Vec3{s[0], s[2], s[1]}
}

// ToEuler converts rotation angles (radians, applied Z then Y then X in the
// authoring application) to (rx, rz, -ry) read in ZYX order.
func ToEuler(r Triple) Euler {
	return Euler{X: r[0], Y: r[2], Z: -r[1], Order: mgl32.ZYX}
}

// ConvertVectors applies ToVector to every 3-element group of a flat
// buffer and returns a new buffer.
func ConvertVectors(flat []float32) ([]float32, error) {
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%w: %d floats is not a multiple of 3", ErrMalformedGeometry, len(flat))
	}

	out := make([]float32, len(flat))
	for i := 0; i < len(flat); i += 3 {
		out[i] = flat[i]
		out[i+1] = flat[i+2]
		out[i+2] = -flat[i+1]
	}
	return out, nil
}
