package scene

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// transformEpsilon is the per-element tolerance for HasChanged comparisons.
// Host-side transform queries round-trip through float32 in places, so exact
// equality would report phantom changes.
const transformEpsilon = 1e-9

// Transform is a 4x4 world transform in row-major order, the wire layout the
// external renderer expects.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// ApproxEqual reports whether two transforms match within transformEpsilon
// per element.
func (t Transform) ApproxEqual(other Transform) bool {
	for i := range t {
		if math.Abs(t[i]-other[i]) > transformEpsilon {
			return false
		}
	}
	return true
}

// Dense returns the transform as a gonum 4x4 matrix.
func (t Transform) Dense() *mat.Dense {
	return mat.NewDense(4, 4, append([]float64(nil), t[:]...))
}

// FromDense converts a gonum 4x4 matrix into a row-major Transform.
func FromDense(m mat.Matrix) (Transform, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return Transform{}, errors.Errorf("expected a 4x4 matrix, got %dx%d", r, c)
	}
	var t Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			t[i*4+j] = m.At(i, j)
		}
	}
	return t, nil
}
