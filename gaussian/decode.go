package gaussian

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"
)

const (
	// shC0 is the zeroth-order real spherical harmonic normalization
	// constant; the DC term maps to RGB as clip(f_dc*shC0 + 0.5, 0, 1).
	shC0 = 0.28209479177387814

	// normEpsilon guards quaternion normalization against zero-length
	// rows: every rotation is divided by (norm + normEpsilon).
	normEpsilon = 1e-8

	// wFirstRatio is the threshold of the stored-order heuristic. The
	// 1.5x factor is inherited from the upstream tooling and has no
	// documented derivation; it is kept for compatibility and is not
	// reliable for adversarial inputs.
	wFirstRatio = 1.5

	// Advisory bounds for post-activation scales. Values outside are
	// logged, not rejected, so legacy data still renders.
	plausibleScaleMin = 1e-6
	plausibleScaleMax = 1e4
)

// storedWFirst decides, from aggregate column statistics, whether a rotation
// block was stored (w,x,y,z) rather than (x,y,z,w). It is a heuristic: the
// scalar part of a near-unit quaternion tends to dominate in magnitude, so a
// first column whose mean |value| clearly exceeds the last column's is taken
// to be w. The decision applies uniformly to the whole set.
func storedWFirst(meanAbsFirst, meanAbsLast float64) bool {
	return meanAbsFirst > meanAbsLast*wFirstRatio
}

func meanAbs(col []float64) float64 {
	if len(col) == 0 {
		return 0
	}
	abs := make([]float64, len(col))
	for i, v := range col {
		abs[i] = math.Abs(v)
	}
	return floats.Sum(abs) / float64(len(abs))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clip(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

// column fetches a field the detector already confirmed; its absence at this
// point is a contract violation between detector and decoder, not a
// user-facing condition.
func column(ps *PropertySet, name string) ([]float64, error) {
	col := ps.Column(name)
	if col == nil {
		return nil, errors.Errorf("internal: field %q missing after format detection", name)
	}
	return col, nil
}

func stackVectors(ps *PropertySet, names [3]string) ([]r3.Vector, error) {
	var cols [3][]float64
	for i, name := range names {
		col, err := column(ps, name)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	out := make([]r3.Vector, len(cols[0]))
	for i := range out {
		out[i] = r3.Vector{X: cols[0][i], Y: cols[1][i], Z: cols[2][i]}
	}
	return out, nil
}

// Decode converts raw columns of the detected format into a canonical Set.
// It is a pure function of its inputs aside from advisory logging.
func Decode(ps *PropertySet, format Format, logger golog.Logger) (*Set, error) {
	positions, err := stackVectors(ps, [3]string{"x", "y", "z"})
	if err != nil {
		return nil, err
	}

	colors, err := decodeColors(ps, format)
	if err != nil {
		return nil, err
	}
	scales, err := decodeScales(ps, format)
	if err != nil {
		return nil, err
	}
	rotations, err := decodeRotations(ps)
	if err != nil {
		return nil, err
	}
	opacityCol, err := column(ps, "opacity")
	if err != nil {
		return nil, err
	}
	opacities := make([]float64, len(opacityCol))
	for i, v := range opacityCol {
		opacities[i] = sigmoid(v)
	}

	set := &Set{
		Positions: positions,
		Opacities: opacities,
		Scales:    scales,
		Rotations: rotations,
		Colors:    colors,
		SH:        decodeSH(ps, len(positions)),
		meta:      NewMetaData(),
	}
	for _, p := range positions {
		set.meta.Merge(p)
	}
	logDegenerate(set, logger)
	return set, nil
}

func decodeColors(ps *PropertySet, format Format) ([]r3.Vector, error) {
	switch format {
	case FormatRGB:
		raw, err := stackVectors(ps, [3]string{"red", "green", "blue"})
		if err != nil {
			return nil, err
		}
		for i, c := range raw {
			raw[i] = r3.Vector{X: c.X / 255, Y: c.Y / 255, Z: c.Z / 255}
		}
		return raw, nil
	case FormatSH:
		raw, err := stackVectors(ps, [3]string{"f_dc_0", "f_dc_1", "f_dc_2"})
		if err != nil {
			return nil, err
		}
		for i, c := range raw {
			raw[i] = r3.Vector{
				X: clip(c.X*shC0+0.5, 0, 1),
				Y: clip(c.Y*shC0+0.5, 0, 1),
				Z: clip(c.Z*shC0+0.5, 0, 1),
			}
		}
		return raw, nil
	default:
		return nil, errors.Errorf("internal: unknown format %v", format)
	}
}

func decodeScales(ps *PropertySet, format Format) ([]r3.Vector, error) {
	switch format {
	case FormatRGB:
		// scale_x/y/z are already linear.
		return stackVectors(ps, [3]string{"scale_x", "scale_y", "scale_z"})
	case FormatSH:
		raw, err := stackVectors(ps, [3]string{"scale_0", "scale_1", "scale_2"})
		if err != nil {
			return nil, err
		}
		for i, s := range raw {
			raw[i] = r3.Vector{X: math.Exp(s.X), Y: math.Exp(s.Y), Z: math.Exp(s.Z)}
		}
		return raw, nil
	default:
		return nil, errors.Errorf("internal: unknown format %v", format)
	}
}

func decodeRotations(ps *PropertySet) ([]quat.Number, error) {
	var cols [4][]float64
	for i, name := range []string{"rot_0", "rot_1", "rot_2", "rot_3"} {
		col, err := column(ps, name)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	x, y, z, w := cols[0], cols[1], cols[2], cols[3]
	if storedWFirst(meanAbs(cols[0]), meanAbs(cols[3])) {
		// Stored (w,x,y,z); permute to (x,y,z,w).
		x, y, z, w = cols[1], cols[2], cols[3], cols[0]
	}

	out := make([]quat.Number, len(x))
	for i := range out {
		q := quat.Number{Real: w[i], Imag: x[i], Jmag: y[i], Kmag: z[i]}
		norm := quat.Abs(q) + normEpsilon
		out[i] = quat.Number{Real: q.Real / norm, Imag: q.Imag / norm, Jmag: q.Jmag / norm, Kmag: q.Kmag / norm}
	}
	return out, nil
}

// decodeSH gathers the optional higher-order spherical-harmonic coefficients
// (f_rest_0, f_rest_1, ...) into one row per point, ordered by coefficient
// index. Sources without rest coefficients yield nil; the DC term is always
// folded into Colors instead.
func decodeSH(ps *PropertySet, n int) [][]float64 {
	type restColumn struct {
		index int
		col   []float64
	}
	var rest []restColumn
	for _, name := range ps.Names() {
		idxStr, ok := strings.CutPrefix(name, "f_rest_")
		if !ok {
			continue
		}
		index, err := strconv.Atoi(idxStr)
		if err != nil || index < 0 {
			continue
		}
		rest = append(rest, restColumn{index: index, col: ps.Column(name)})
	}
	if len(rest) == 0 {
		return nil
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].index < rest[j].index })

	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, len(rest))
		for j, rc := range rest {
			row[j] = rc.col[i]
		}
		out[i] = row
	}
	return out
}

// logDegenerate reports implausible post-activation values without failing
// the decode.
func logDegenerate(set *Set, logger golog.Logger) {
	if logger == nil || set.Size() == 0 {
		return
	}
	degenerateScales := 0
	for _, s := range set.Scales {
		for _, c := range []float64{s.X, s.Y, s.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) || c < plausibleScaleMin || c > plausibleScaleMax {
				degenerateScales++
				break
			}
		}
	}
	if degenerateScales > 0 {
		logger.Warnw("scales outside plausible post-activation range",
			"count", degenerateScales,
			"range", []float64{plausibleScaleMin, plausibleScaleMax})
	}
	if lo, hi := floats.Min(set.Opacities), floats.Max(set.Opacities); lo < 0 || hi > 1 {
		logger.Warnw("opacities outside [0,1]", "min", lo, "max", hi)
	}
}
