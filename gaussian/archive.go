package gaussian

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"go.viam.com/utils"
)

// rotationAliasKeys are the names the inference pipeline's save format has
// used for the rotation block, in lookup order.
var rotationAliasKeys = []string{"rotation", "rotations", "quat", "quaternion"}

// Array is one named array loaded from a pickle-equivalent archive: a flat
// data slice plus the declared shape.
type Array struct {
	Shape []int
	Data  []float64
}

// col extracts column i of an N x width array as its own slice. A flat
// length-N*width array is treated the same as an N x width one.
func (a Array) col(i, width int) []float64 {
	n := len(a.Data) / width
	out := make([]float64, n)
	for r := 0; r < n; r++ {
		out[r] = a.Data[r*width+i]
	}
	return out
}

// flat returns the array as one value per row, tolerating a stray singleton
// dimension (N x 1 and flat N are equivalent).
func (a Array) flat() []float64 {
	return a.Data
}

// NewFromArchiveFile reads a .npz archive saved by the inference pipeline and
// decodes it. The archive carries the same quantities as a FormatSH PLY
// under different names: xyz, f_dc, opacity (logit), scaling (log-space),
// and a rotation block under one of several alias keys.
func NewFromArchiveFile(fn string, logger golog.Logger) (*Set, error) {
	arrays, err := ReadArchive(fn)
	if err != nil {
		return nil, err
	}
	return DecodeArchive(arrays, logger)
}

// ReadArchive loads every array member of a .npz file.
func ReadArchive(fn string) (map[string]Array, error) {
	zr, err := zip.OpenReader(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening archive %q", fn)
	}
	defer utils.UncheckedErrorFunc(zr.Close)

	arrays := make(map[string]Array, len(zr.File))
	for _, member := range zr.File {
		name := strings.TrimSuffix(member.Name, ".npy")
		rc, err := member.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "opening archive member %q", member.Name)
		}
		arr, err := readNPY(rc)
		cerr := rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "reading archive member %q", member.Name)
		}
		if cerr != nil {
			return nil, cerr
		}
		arrays[name] = arr
	}
	return arrays, nil
}

func readNPY(r io.Reader) (Array, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return Array{}, err
	}
	shape := append([]int(nil), nr.Header.Descr.Shape...)

	var data []float64
	switch dtype := nr.Header.Descr.Type; dtype {
	case "<f8", "f8", ">f8":
		if err := nr.Read(&data); err != nil {
			return Array{}, err
		}
	case "<f4", "f4", ">f4":
		var f32 []float32
		if err := nr.Read(&f32); err != nil {
			return Array{}, err
		}
		data = make([]float64, len(f32))
		for i, v := range f32 {
			data[i] = float64(v)
		}
	case "<i4", "i4", ">i4":
		var i32 []int32
		if err := nr.Read(&i32); err != nil {
			return Array{}, err
		}
		data = make([]float64, len(i32))
		for i, v := range i32 {
			data[i] = float64(v)
		}
	case "<i8", "i8", ">i8":
		var i64 []int64
		if err := nr.Read(&i64); err != nil {
			return Array{}, err
		}
		data = make([]float64, len(i64))
		for i, v := range i64 {
			data[i] = float64(v)
		}
	default:
		return Array{}, errors.Errorf("unsupported array dtype %q", dtype)
	}
	return Array{Shape: shape, Data: data}, nil
}

// DecodeArchive maps the archive key layout onto the canonical decode
// pipeline. Missing rotation data is not an error: legacy archives carry
// none, and an identity quaternion per point keeps them importable. Every
// member's value count must agree with the point count implied by xyz; a
// truncated or mismatched member fails the whole decode rather than yield a
// set with ragged arrays.
func DecodeArchive(arrays map[string]Array, logger golog.Logger) (*Set, error) {
	available := make([]string, 0, len(arrays))
	for k := range arrays {
		available = append(available, k)
	}
	sort.Strings(available)

	var missing []string
	for _, key := range []string{"xyz", "f_dc", "opacity", "scaling"} {
		if _, ok := arrays[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, newInvalidFormatError(missing, available)
	}

	// Shape metadata is advisory: a flat length-3N member decodes the same
	// as an N x 3 one. The point count comes from xyz and every other
	// member is held to it.
	xyz := arrays["xyz"]
	if len(xyz.Data) == 0 || len(xyz.Data)%3 != 0 {
		return nil, newInconsistentFormatError(
			[]string{fmt.Sprintf("xyz has %d values, not a positive multiple of 3", len(xyz.Data))},
			available)
	}
	n := len(xyz.Data) / 3

	var inconsistent []string
	checkCount := func(key string, got, want int) {
		if got != want {
			inconsistent = append(inconsistent,
				fmt.Sprintf("%s has %d values for %d points", key, got, n))
		}
	}
	checkCount("f_dc", len(arrays["f_dc"].Data), 3*n)
	checkCount("scaling", len(arrays["scaling"].Data), 3*n)
	checkCount("opacity", len(arrays["opacity"].Data), n)
	rot, hasRot := rotationArray(arrays, n, checkCount)
	if len(inconsistent) > 0 {
		return nil, newInconsistentFormatError(inconsistent, available)
	}

	ps := NewPropertySet()
	for i, name := range []string{"x", "y", "z"} {
		ps.Add(name, xyz.col(i, 3))
	}
	fdc := arrays["f_dc"]
	for i, name := range []string{"f_dc_0", "f_dc_1", "f_dc_2"} {
		ps.Add(name, fdc.col(i, 3))
	}
	scaling := arrays["scaling"]
	for i, name := range []string{"scale_0", "scale_1", "scale_2"} {
		ps.Add(name, scaling.col(i, 3))
	}
	ps.Add("opacity", arrays["opacity"].flat())

	if !hasRot {
		// No rotation source under any alias; synthesize identities.
		zero := make([]float64, n)
		one := make([]float64, n)
		for i := range one {
			one[i] = 1
		}
		ps.Add("rot_0", zero)
		ps.Add("rot_1", append([]float64(nil), zero...))
		ps.Add("rot_2", append([]float64(nil), zero...))
		ps.Add("rot_3", one)
	} else {
		for i, name := range []string{"rot_0", "rot_1", "rot_2", "rot_3"} {
			ps.Add(name, rot.col(i, 4))
		}
	}

	return Decode(ps, FormatSH, logger)
}

// rotationArray resolves the rotation source: an alias-keyed N x 4 block, or
// four separate length-N columns. Each candidate's value count is reported
// through checkCount; a mismatched source still returns true so the caller
// fails the decode instead of silently falling back to identities.
func rotationArray(arrays map[string]Array, n int, checkCount func(key string, got, want int)) (Array, bool) {
	for _, key := range rotationAliasKeys {
		if arr, ok := arrays[key]; ok {
			checkCount(key, len(arr.Data), 4*n)
			return arr, true
		}
	}
	// Last resort: four separate columns.
	var cols [4]Array
	for i, key := range []string{"rot_0", "rot_1", "rot_2", "rot_3"} {
		arr, ok := arrays[key]
		if !ok {
			return Array{}, false
		}
		checkCount(key, len(arr.Data), n)
		cols[i] = arr
	}
	joined := Array{Shape: []int{n, 4}, Data: make([]float64, n*4)}
	for r := 0; r < n; r++ {
		for i := 0; i < 4; i++ {
			if r < len(cols[i].Data) {
				joined.Data[r*4+i] = cols[i].Data[r]
			}
		}
	}
	return joined, true
}

// ReadCameraMetadata loads the optional camera-metadata sidecar saved next to
// a splat file (same stem, .npz extension). A missing sidecar is not an
// error; both returns are nil.
func ReadCameraMetadata(fn string) (map[string]Array, error) {
	if _, err := os.Stat(fn); os.IsNotExist(err) {
		return nil, nil
	}
	return ReadArchive(fn)
}
