package gaussian

import (
	"archive/zip"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/sbinet/npyio"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func flatArray(vals ...float64) Array {
	return Array{Shape: []int{len(vals)}, Data: vals}
}

func baseArchive() map[string]Array {
	return map[string]Array{
		"xyz":     {Shape: []int{2, 3}, Data: []float64{0, 0, 0, 1, 2, 3}},
		"f_dc":    {Shape: []int{2, 3}, Data: []float64{0, 0, 0, 1, 1, 1}},
		"opacity": flatArray(0, 4),
		"scaling": {Shape: []int{2, 3}, Data: []float64{0, 0, 0, -1, -1, -1}},
	}
}

func TestDecodeArchive(t *testing.T) {
	arrays := baseArchive()
	arrays["rotation"] = Array{Shape: []int{2, 4}, Data: []float64{
		0, 0, 0, 1,
		0, 1, 0, 1,
	}}

	set, err := DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Size(), test.ShouldEqual, 2)
	test.That(t, set.Positions[1].Z, test.ShouldEqual, 3.0)
	// The archive's raw fields are the FormatSH fields under other names.
	test.That(t, set.Scales[1].X, test.ShouldAlmostEqual, math.Exp(-1), 1e-12)
	test.That(t, set.Opacities[1], test.ShouldAlmostEqual, 1/(1+math.Exp(-4)), 1e-12)
	test.That(t, set.Colors[1].X, test.ShouldAlmostEqual, clip(shC0+0.5, 0, 1), 1e-12)
	for _, q := range set.Rotations {
		test.That(t, quat.Abs(q), test.ShouldAlmostEqual, 1.0, 1e-5)
	}
}

func TestDecodeArchiveRotationAliases(t *testing.T) {
	for _, alias := range []string{"rotation", "rotations", "quat", "quaternion"} {
		arrays := baseArchive()
		arrays[alias] = Array{Shape: []int{2, 4}, Data: []float64{
			0, 0, 0, 1,
			0, 0, 0, 1,
		}}
		set, err := DecodeArchive(arrays, golog.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, set.Rotations[0].Real, test.ShouldAlmostEqual, 1.0, 1e-6)
	}
}

func TestDecodeArchiveSeparateRotationColumns(t *testing.T) {
	arrays := baseArchive()
	arrays["rot_0"] = flatArray(0, 0)
	arrays["rot_1"] = flatArray(0, 1)
	arrays["rot_2"] = flatArray(0, 0)
	arrays["rot_3"] = flatArray(1, 1)

	set, err := DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Rotations[0].Real, test.ShouldAlmostEqual, 1.0, 1e-6)
	test.That(t, set.Rotations[1].Jmag, test.ShouldAlmostEqual, 1/math.Sqrt2, 1e-6)
}

func TestDecodeArchiveIdentityFallback(t *testing.T) {
	set, err := DecodeArchive(baseArchive(), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	for _, q := range set.Rotations {
		test.That(t, q.Real, test.ShouldAlmostEqual, 1.0, 1e-6)
		test.That(t, q.Imag, test.ShouldAlmostEqual, 0.0, 1e-6)
		test.That(t, q.Jmag, test.ShouldAlmostEqual, 0.0, 1e-6)
		test.That(t, q.Kmag, test.ShouldAlmostEqual, 0.0, 1e-6)
	}
}

func TestDecodeArchiveInconsistentCounts(t *testing.T) {
	// A rotation block with fewer rows than xyz must fail the decode, not
	// produce a set with ragged arrays.
	arrays := baseArchive()
	arrays["rotation"] = Array{Shape: []int{1, 4}, Data: []float64{0, 0, 0, 1}}
	_, err := DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsInvalidFormat(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "inconsistent")
	test.That(t, err.Error(), test.ShouldContainSubstring, "rotation has 4 values for 2 points")

	arrays = baseArchive()
	arrays["opacity"] = flatArray(0)
	_, err = DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "opacity has 1 values for 2 points")

	arrays = baseArchive()
	arrays["f_dc"] = flatArray(0, 0, 0)
	_, err = DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "f_dc has 3 values for 2 points")

	// Separate rotation columns are held to the point count too.
	arrays = baseArchive()
	arrays["rot_0"] = flatArray(0, 0)
	arrays["rot_1"] = flatArray(0, 0)
	arrays["rot_2"] = flatArray(0, 0)
	arrays["rot_3"] = flatArray(1)
	_, err = DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "rot_3 has 1 values for 2 points")
}

func TestDecodeArchiveBadXYZLength(t *testing.T) {
	arrays := baseArchive()
	arrays["xyz"] = flatArray(0, 0, 0, 1)
	_, err := DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsInvalidFormat(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a positive multiple of 3")

	arrays["xyz"] = Array{}
	_, err = DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecodeArchiveValidOutputHasEqualLengths(t *testing.T) {
	arrays := baseArchive()
	arrays["rotation"] = Array{Shape: []int{2, 4}, Data: []float64{
		0, 0, 0, 1,
		0, 0, 0, 1,
	}}
	set, err := DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Validate(), test.ShouldBeNil)
	test.That(t, len(set.Rotations), test.ShouldEqual, set.Size())
	test.That(t, len(set.Colors), test.ShouldEqual, set.Size())
}

func TestDecodeArchiveMissingKeys(t *testing.T) {
	arrays := baseArchive()
	delete(arrays, "scaling")
	_, err := DecodeArchive(arrays, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsInvalidFormat(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "scaling")
}

func writeArchive(t *testing.T, fn string, members map[string][]float64) {
	t.Helper()
	f, err := os.Create(fn)
	test.That(t, err, test.ShouldBeNil)
	zw := zip.NewWriter(f)
	for name, data := range members {
		w, err := zw.Create(name + ".npy")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, npyio.Write(w, data), test.ShouldBeNil)
	}
	test.That(t, zw.Close(), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)
}

func TestNewFromArchiveFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "splat.npz")
	writeArchive(t, fn, map[string][]float64{
		"xyz":      {0, 0, 0, 1, 2, 3},
		"f_dc":     {0, 0, 0, 1, 1, 1},
		"opacity":  {0, 4},
		"scaling":  {0, 0, 0, -1, -1, -1},
		"rotation": {0, 0, 0, 1, 0, 0, 0, 1},
	})

	set, err := NewFromArchiveFile(fn, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Size(), test.ShouldEqual, 2)
	test.That(t, set.Positions[1].X, test.ShouldEqual, 1.0)
	test.That(t, set.Opacities[0], test.ShouldEqual, 0.5)
}

func TestReadCameraMetadata(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "splat.npz")
	writeArchive(t, fn, map[string][]float64{
		"focal": {35},
	})

	arrays, err := ReadCameraMetadata(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arrays["focal"].Data[0], test.ShouldEqual, 35.0)

	arrays, err = ReadCameraMetadata(filepath.Join(dir, "absent.npz"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arrays, test.ShouldBeNil)
}
