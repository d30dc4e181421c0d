package gaussian

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// NewFromFile decodes a splat source file into a canonical Set, dispatching
// on extension. Supported: .ply in either schema DetectFormat accepts, and
// .npz, the training pipeline's native archive format.
func NewFromFile(fn string, logger golog.Logger) (*Set, error) {
	switch filepath.Ext(fn) {
	case ".ply":
		return NewFromPLYFile(fn, logger)
	case ".npz":
		return NewFromArchiveFile(fn, logger)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// NewFromPLYFile reads a PLY file and decodes it.
func NewFromPLYFile(fn string, logger golog.Logger) (*Set, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	ps, err := ReadPLY(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", fn)
	}
	format, err := DetectFormat(ps)
	if err != nil {
		return nil, err
	}
	return Decode(ps, format, logger)
}

type plyEncoding int

const (
	plyAscii plyEncoding = iota
	plyBinaryLE
)

type plyScalarType struct {
	size     int
	float    bool
	unsigned bool
}

// plyScalarTypes maps the declared property types we accept. List properties
// never occur on splat vertex elements and are rejected.
var plyScalarTypes = map[string]plyScalarType{
	"char":    {size: 1},
	"int8":    {size: 1},
	"uchar":   {size: 1, unsigned: true},
	"uint8":   {size: 1, unsigned: true},
	"short":   {size: 2},
	"int16":   {size: 2},
	"ushort":  {size: 2, unsigned: true},
	"uint16":  {size: 2, unsigned: true},
	"int":     {size: 4},
	"int32":   {size: 4},
	"uint":    {size: 4, unsigned: true},
	"uint32":  {size: 4, unsigned: true},
	"float":   {size: 4, float: true},
	"float32": {size: 4, float: true},
	"double":  {size: 8, float: true},
	"float64": {size: 8, float: true},
}

type plyProperty struct {
	name string
	typ  plyScalarType
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	encoding plyEncoding
	elements []plyElement
}

// ReadPLY parses a PLY stream and returns the raw per-vertex columns. Only
// the "vertex" element is collected; other elements are skipped. Both ascii
// and binary_little_endian encodings are supported; big-endian files are
// rejected since none of the pipeline's writers emit them.
func ReadPLY(inRaw io.Reader) (*PropertySet, error) {
	in := bufio.NewReader(inRaw)
	header, err := readPLYHeader(in)
	if err != nil {
		return nil, err
	}

	ps := NewPropertySet()
	for _, elem := range header.elements {
		if elem.name != "vertex" {
			if err := skipPLYElement(in, header.encoding, elem); err != nil {
				return nil, err
			}
			continue
		}
		cols := make([][]float64, len(elem.props))
		for i := range cols {
			cols[i] = make([]float64, elem.count)
		}
		switch header.encoding {
		case plyAscii:
			err = readPLYAscii(in, elem, cols)
		case plyBinaryLE:
			err = readPLYBinary(in, elem, cols)
		}
		if err != nil {
			return nil, err
		}
		for i, prop := range elem.props {
			ps.Add(prop.name, cols[i])
		}
	}
	if ps.Size() == 0 && len(ps.Names()) == 0 {
		return nil, errors.New("ply file has no vertex element")
	}
	return ps, nil
}

func readPLYHeader(in *bufio.Reader) (*plyHeader, error) {
	line, err := readHeaderLine(in)
	if err != nil {
		return nil, err
	}
	if line != "ply" {
		return nil, errors.Errorf("not a ply file: first line is %q", line)
	}

	header := &plyHeader{}
	sawFormat := false
	for {
		line, err := readHeaderLine(in)
		if err != nil {
			return nil, err
		}
		if line == "" || strings.HasPrefix(line, "comment") || strings.HasPrefix(line, "obj_info") {
			continue
		}
		if line == "end_header" {
			break
		}
		field, value, _ := strings.Cut(line, " ")
		switch field {
		case "format":
			enc, _, _ := strings.Cut(value, " ")
			switch enc {
			case "ascii":
				header.encoding = plyAscii
			case "binary_little_endian":
				header.encoding = plyBinaryLE
			case "binary_big_endian":
				return nil, errors.New("big-endian ply files are not supported")
			default:
				return nil, errors.Errorf("unsupported ply format %q", enc)
			}
			sawFormat = true
		case "element":
			name, countStr, _ := strings.Cut(value, " ")
			count, err := strconv.Atoi(countStr)
			if err != nil || count < 0 {
				return nil, errors.Errorf("invalid element count in line %q", line)
			}
			header.elements = append(header.elements, plyElement{name: name, count: count})
		case "property":
			if len(header.elements) == 0 {
				return nil, errors.Errorf("property before any element: %q", line)
			}
			elem := &header.elements[len(header.elements)-1]
			typName, propName, ok := strings.Cut(value, " ")
			if !ok {
				return nil, errors.Errorf("invalid property line %q", line)
			}
			if typName == "list" {
				return nil, errors.Errorf("list property %q on element %q is not supported", propName, elem.name)
			}
			typ, ok := plyScalarTypes[typName]
			if !ok {
				return nil, errors.Errorf("unsupported property type %q", typName)
			}
			elem.props = append(elem.props, plyProperty{name: propName, typ: typ})
		default:
			return nil, errors.Errorf("unrecognized ply header line %q", line)
		}
	}
	if !sawFormat {
		return nil, errors.New("ply header has no format line")
	}
	return header, nil
}

func readHeaderLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "reading ply header")
	}
	return strings.TrimSpace(line), nil
}

func readPLYAscii(in *bufio.Reader, elem plyElement, cols [][]float64) error {
	for i := 0; i < elem.count; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return errors.Wrapf(err, "reading vertex %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != len(elem.props) {
			return errors.Errorf("vertex %d has %d fields, expected %d", i, len(tokens), len(elem.props))
		}
		for j, token := range tokens {
			v, err := strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Errorf("invalid vertex %d field %q: %s", i, token, err)
			}
			cols[j][i] = v
		}
	}
	return nil
}

func readPLYBinary(in *bufio.Reader, elem plyElement, cols [][]float64) error {
	rowSize := 0
	for _, prop := range elem.props {
		rowSize += prop.typ.size
	}
	buf := make([]byte, rowSize)
	for i := 0; i < elem.count; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return errors.Wrapf(err, "reading vertex %d", i)
		}
		off := 0
		for j, prop := range elem.props {
			cols[j][i] = decodePLYScalar(buf[off:off+prop.typ.size], prop.typ)
			off += prop.typ.size
		}
	}
	return nil
}

func decodePLYScalar(b []byte, typ plyScalarType) float64 {
	switch {
	case typ.float && typ.size == 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case typ.float && typ.size == 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case typ.unsigned:
		switch typ.size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(binary.LittleEndian.Uint16(b))
		default:
			return float64(binary.LittleEndian.Uint32(b))
		}
	default:
		switch typ.size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(b)))
		default:
			return float64(int32(binary.LittleEndian.Uint32(b)))
		}
	}
}

func skipPLYElement(in *bufio.Reader, encoding plyEncoding, elem plyElement) error {
	switch encoding {
	case plyAscii:
		for i := 0; i < elem.count; i++ {
			if _, err := in.ReadString('\n'); err != nil {
				return errors.Wrapf(err, "skipping element %q", elem.name)
			}
		}
	case plyBinaryLE:
		rowSize := 0
		for _, prop := range elem.props {
			rowSize += prop.typ.size
		}
		if _, err := io.CopyN(io.Discard, in, int64(rowSize)*int64(elem.count)); err != nil {
			return errors.Wrapf(err, "skipping element %q", elem.name)
		}
	}
	return nil
}
