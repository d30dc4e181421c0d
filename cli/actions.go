package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/splatcraft/splatcore/gaussian"
	"github.com/splatcraft/splatcore/scene"
)

func actionLogger(c *cli.Context) golog.Logger {
	if c.Bool("debug") {
		return golog.NewDebugLogger("splatcore")
	}
	return golog.NewDevelopmentLogger("splatcore")
}

// InspectAction classifies a splat file and prints its schema and bounds.
func InspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("inspect takes exactly one file")
	}
	fn := c.Args().First()
	logger := actionLogger(c)

	var set *gaussian.Set
	if filepath.Ext(fn) == ".ply" {
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return err
		}
		ps, err := gaussian.ReadPLY(f)
		cerr := f.Close()
		if err != nil {
			return err
		}
		if cerr != nil {
			return cerr
		}
		format, err := gaussian.DetectFormat(ps)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "format: ply/%s\n", format)
		fmt.Fprintf(c.App.Writer, "fields: %s\n", strings.Join(ps.Names(), ", "))
		set, err = gaussian.Decode(ps, format, logger)
		if err != nil {
			return err
		}
	} else {
		var err error
		set, err = gaussian.NewFromFile(fn, logger)
		if err != nil {
			return err
		}
	}
	meta := set.MetaData()
	fmt.Fprintf(c.App.Writer, "points: %d\n", set.Size())
	fmt.Fprintf(c.App.Writer, "bounds: min %s max %s\n", formatVec(meta.Min()), formatVec(meta.Max()))
	fmt.Fprintf(c.App.Writer, "center: %s\n", formatVec(meta.Center()))
	fmt.Fprintf(c.App.Writer, "extent: %.3f\n", meta.Extent())
	fmt.Fprintf(c.App.Writer, "suggested lod: %.2f\n", gaussian.AutoLOD(set.Size()))

	sidecar := strings.TrimSuffix(fn, filepath.Ext(fn)) + ".npz"
	if sidecar != fn {
		arrays, err := gaussian.ReadCameraMetadata(sidecar)
		if err != nil {
			return errors.Wrapf(err, "reading camera sidecar %q", sidecar)
		}
		if len(arrays) > 0 {
			keys := make([]string, 0, len(arrays))
			for k := range arrays {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(c.App.Writer, "camera metadata: %s\n", strings.Join(keys, ", "))
		}
	}
	return nil
}

// ConvertAction decodes one or more splat files and writes the renderer
// transport payload. A single input emits a bare payload; multiple inputs
// emit the multi-object scene structure, one object per file named after its
// basename.
func ConvertAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("convert takes at least one file")
	}
	logger := actionLogger(c)

	var out []byte
	if c.NArg() == 1 {
		set, err := gaussian.NewFromFile(c.Args().First(), logger)
		if err != nil {
			return err
		}
		out, err = scene.MarshalSet(set)
		if err != nil {
			return err
		}
	} else {
		store := scene.NewStore(logger)
		for _, fn := range c.Args().Slice() {
			name := strings.TrimSuffix(filepath.Base(fn), filepath.Ext(fn))
			if _, err := store.Import(name, fn); err != nil {
				return errors.Wrapf(err, "importing %q", fn)
			}
		}
		var err error
		out, err = store.MarshalScene()
		if err != nil {
			return err
		}
	}
	return writeOutput(c, out)
}

// PreviewAction decodes a splat file, decimates it, and writes the preview
// positions and colors.
func PreviewAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("preview takes exactly one file")
	}
	set, err := gaussian.NewFromFile(c.Args().First(), actionLogger(c))
	if err != nil {
		return err
	}
	preview := gaussian.Decimate(set, c.Float64("lod"), c.Int("cap"))

	type previewPayload struct {
		Positions []float32 `json:"positions"`
		Colors    []float32 `json:"colors"`
		Count     int       `json:"count"`
	}
	p := previewPayload{
		Positions: make([]float32, 0, 3*preview.Size()),
		Colors:    make([]float32, 0, 3*preview.Size()),
		Count:     preview.Size(),
	}
	for i := 0; i < preview.Size(); i++ {
		p.Positions = appendVec(p.Positions, preview.Positions[i])
		p.Colors = appendVec(p.Colors, preview.Colors[i])
	}
	out, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return writeOutput(c, out)
}

func appendVec(dst []float32, v r3.Vector) []float32 {
	return append(dst, float32(v.X), float32(v.Y), float32(v.Z))
}

func formatVec(v r3.Vector) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}

func writeOutput(c *cli.Context, data []byte) error {
	if out := c.String("out"); out != "" {
		return os.WriteFile(out, data, 0o644)
	}
	_, err := c.App.Writer.Write(append(data, '\n'))
	return err
}
