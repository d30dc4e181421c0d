package gaussian

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

const asciiSplatPLY = `ply
format ascii 1.0
comment generated by an inference run
element vertex 2
property float x
property float y
property float z
property float f_dc_0
property float f_dc_1
property float f_dc_2
property float opacity
property float scale_0
property float scale_1
property float scale_2
property float rot_0
property float rot_1
property float rot_2
property float rot_3
end_header
0 0 0 0 0 0 0 0 0 0 1 0 0 0
1 2 3 1 1 1 2 -1 -1 -1 1 0 0 0
`

func TestReadPLYAscii(t *testing.T) {
	ps, err := ReadPLY(strings.NewReader(asciiSplatPLY))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ps.Size(), test.ShouldEqual, 2)
	test.That(t, ps.Column("x")[1], test.ShouldEqual, 1.0)
	test.That(t, ps.Column("opacity")[1], test.ShouldEqual, 2.0)

	format, err := DetectFormat(ps)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, FormatSH)

	set, err := Decode(ps, format, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Size(), test.ShouldEqual, 2)
	test.That(t, set.Positions[1].Z, test.ShouldEqual, 3.0)
	test.That(t, set.Scales[1].X, test.ShouldAlmostEqual, math.Exp(-1), 1e-12)
}

// binarySplatPLY builds a two-point binary_little_endian file equivalent to
// the ascii fixture but in the direct-RGB schema, with uchar colors.
func binarySplatPLY(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("ply\n")
	buf.WriteString("format binary_little_endian 1.0\n")
	buf.WriteString("element vertex 2\n")
	for _, name := range []string{"x", "y", "z"} {
		buf.WriteString("property float " + name + "\n")
	}
	for _, name := range []string{"red", "green", "blue"} {
		buf.WriteString("property uchar " + name + "\n")
	}
	buf.WriteString("property float opacity\n")
	for _, name := range []string{"scale_x", "scale_y", "scale_z"} {
		buf.WriteString("property float " + name + "\n")
	}
	for _, name := range []string{"rot_0", "rot_1", "rot_2", "rot_3"} {
		buf.WriteString("property float " + name + "\n")
	}
	buf.WriteString("end_header\n")

	writeF32 := func(v float32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		buf.Write(b[:])
	}
	writeVertex := func(x, y, z float32, r, g, b byte, opacity float32, scale [3]float32, rot [4]float32) {
		writeF32(x)
		writeF32(y)
		writeF32(z)
		buf.WriteByte(r)
		buf.WriteByte(g)
		buf.WriteByte(b)
		writeF32(opacity)
		for _, s := range scale {
			writeF32(s)
		}
		for _, q := range rot {
			writeF32(q)
		}
	}
	writeVertex(0, 0, 0, 0, 128, 255, 0, [3]float32{1, 1, 1}, [4]float32{0, 0, 0, 1})
	writeVertex(1, 2, 3, 255, 0, 0, 4, [3]float32{2, 2, 2}, [4]float32{0, 0, 0, 1})
	return buf.Bytes()
}

func TestReadPLYBinary(t *testing.T) {
	ps, err := ReadPLY(bytes.NewReader(binarySplatPLY(t)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ps.Size(), test.ShouldEqual, 2)

	format, err := DetectFormat(ps)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, FormatRGB)

	set, err := Decode(ps, format, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Colors[0].Y, test.ShouldEqual, 128.0/255.0)
	test.That(t, set.Colors[1].X, test.ShouldEqual, 1.0)
	test.That(t, set.Positions[1].Y, test.ShouldEqual, 2.0)
	// Direct-RGB scales are linear, no exp applied.
	test.That(t, set.Scales[1].X, test.ShouldEqual, 2.0)
}

func TestReadPLYSkipsOtherElements(t *testing.T) {
	src := strings.Replace(asciiSplatPLY,
		"element vertex 2",
		"element camera 1\nproperty float fov\nelement vertex 2", 1)
	src = strings.Replace(src, "end_header\n", "end_header\n1.2\n", 1)

	ps, err := ReadPLY(strings.NewReader(src))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ps.Size(), test.ShouldEqual, 2)
	test.That(t, ps.Has("fov"), test.ShouldBeFalse)
	test.That(t, ps.Column("x")[1], test.ShouldEqual, 1.0)
}

func TestReadPLYRejectsBigEndian(t *testing.T) {
	src := strings.Replace(asciiSplatPLY, "format ascii 1.0", "format binary_big_endian 1.0", 1)
	_, err := ReadPLY(strings.NewReader(src))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "big-endian")
}

func TestReadPLYRejectsListProperties(t *testing.T) {
	src := strings.Replace(asciiSplatPLY,
		"property float rot_3",
		"property float rot_3\nproperty list uchar int vertex_indices", 1)
	_, err := ReadPLY(strings.NewReader(src))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "list")
}

func TestReadPLYNotAPLY(t *testing.T) {
	_, err := ReadPLY(strings.NewReader("solid teapot\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a ply file")
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "splat.ply")
	test.That(t, os.WriteFile(fn, []byte(asciiSplatPLY), 0o644), test.ShouldBeNil)

	set, err := NewFromFile(fn, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Size(), test.ShouldEqual, 2)

	_, err = NewFromFile(filepath.Join(dir, "missing.ply"), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	_, err = NewFromFile(filepath.Join(dir, "splat.obj"), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "do not know how to read")
}

func TestNewFromFileInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "plain.ply")
	plain := `ply
format ascii 1.0
element vertex 1
property float x
property float y
property float z
end_header
0 0 0
`
	test.That(t, os.WriteFile(fn, []byte(plain), 0o644), test.ShouldBeNil)
	_, err := NewFromFile(fn, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsInvalidFormat(err), test.ShouldBeTrue)
}
