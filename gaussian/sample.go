package gaussian

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
)

const (
	// MinLOD and MaxLOD bound the level-of-detail fraction; values outside
	// are clamped.
	MinLOD = 0.01
	MaxLOD = 1.0

	// DefaultPreviewCap is the hard limit on preview points. Full
	// per-point rendering of multi-million-point sets inside a host
	// viewport is not viable; a bounded reproducible subsample preserves
	// visual density while capping draw cost.
	DefaultPreviewCap = 20000

	// decimationSeed fixes the sampler's random source so repeated calls
	// with the same inputs pick the same indices, keeping viewport
	// redraws stable.
	decimationSeed = 42
)

// Preview is a decimated view of a Set: positions and display colors only.
type Preview struct {
	Positions []r3.Vector
	Colors    []r3.Vector
}

// Size returns the number of preview points.
func (p Preview) Size() int {
	return len(p.Positions)
}

// Decimate produces a bounded, reproducible subsample of the set for fast
// preview. The target count is round(N*lod) clamped to [1, min(N, cap)];
// cap <= 0 selects DefaultPreviewCap. When the target covers the whole set
// the original slices are returned as-is, which is safe because a Set is
// immutable. Colors are renormalized to [0,1] if legacy data stored them in
// [0,255] or [-1,1].
func Decimate(set *Set, lod float64, capPoints int) Preview {
	n := set.Size()
	if n == 0 {
		return Preview{}
	}
	if capPoints <= 0 {
		capPoints = DefaultPreviewCap
	}
	lod = math.Max(MinLOD, math.Min(MaxLOD, lod))

	k := int(math.Round(float64(n) * lod))
	if k > capPoints {
		k = capPoints
	}
	if k < 1 {
		k = 1
	}
	if k >= n {
		return Preview{Positions: set.Positions, Colors: normalizeColors(set.Colors)}
	}

	indices := sampleWithoutReplacement(n, k)
	positions := make([]r3.Vector, k)
	colors := make([]r3.Vector, k)
	for i, idx := range indices {
		positions[i] = set.Positions[idx]
		colors[i] = set.Colors[idx]
	}
	return Preview{Positions: positions, Colors: normalizeColors(colors)}
}

// sampleWithoutReplacement draws k distinct indices from [0, n) with a fixed
// seed: a partial Fisher-Yates shuffle, so only the first k slots are
// settled.
func sampleWithoutReplacement(n, k int) []int {
	r := rand.New(rand.NewSource(decimationSeed))
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + r.Intn(n-i)
		indices[i], indices[j] = indices[j], indices[i]
	}
	return indices[:k]
}

// normalizeColors maps legacy color ranges onto [0,1]. Canonically decoded
// sets are already in range and come back untouched.
func normalizeColors(colors []r3.Vector) []r3.Vector {
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, c := range colors {
		lo = math.Min(lo, math.Min(c.X, math.Min(c.Y, c.Z)))
		hi = math.Max(hi, math.Max(c.X, math.Max(c.Y, c.Z)))
	}
	switch {
	case hi > 1:
		// Stored as [0,255].
		out := make([]r3.Vector, len(colors))
		for i, c := range colors {
			out[i] = c.Mul(1.0 / 255.0)
		}
		return out
	case lo < 0:
		// Stored as [-1,1].
		out := make([]r3.Vector, len(colors))
		for i, c := range colors {
			out[i] = r3.Vector{
				X: clip((c.X+1)*0.5, 0, 1),
				Y: clip((c.Y+1)*0.5, 0, 1),
				Z: clip((c.Z+1)*0.5, 0, 1),
			}
		}
		return out
	default:
		return colors
	}
}

// AutoLOD suggests an initial level-of-detail fraction for a freshly
// imported set of n points. Large scenes start heavily decimated so the
// first draw cannot stall the host.
func AutoLOD(n int) float64 {
	switch {
	case n > 2000000:
		return 0.01
	case n > 500000:
		return 0.02
	case n < 10000:
		return 1.0
	default:
		return 0.1
	}
}
