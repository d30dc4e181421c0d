package gaussian

import "fmt"

// Format identifies which of the two supported splat schemas a property set
// follows.
type Format int

const (
	// FormatRGB stores color as raw red/green/blue bytes and scale as
	// linear scale_x/y/z.
	FormatRGB Format = iota
	// FormatSH stores color as spherical-harmonic DC terms f_dc_0/1/2 and
	// scale in log-space as scale_0/1/2.
	FormatSH
)

func (f Format) String() string {
	switch f {
	case FormatRGB:
		return "rgb"
	case FormatSH:
		return "sh"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// requiredBaseFields must be present regardless of format.
var requiredBaseFields = []string{"x", "y", "z", "opacity", "rot_0", "rot_1", "rot_2", "rot_3"}

// DetectFormat classifies a property set as FormatRGB or FormatSH. Detection
// is a hard validation gate: if any required base field is missing, or
// neither color variant is present, or neither scale variant is present, it
// fails with an InvalidFormatError and no partial decode is attempted.
func DetectFormat(ps *PropertySet) (Format, error) {
	hasRGB := ps.Has("red")
	hasSH := ps.Has("f_dc_0")
	hasScaleXYZ := ps.Has("scale_x")
	hasScale012 := ps.Has("scale_0")

	var missing []string
	for _, f := range requiredBaseFields {
		if !ps.Has(f) {
			missing = append(missing, f)
		}
	}
	if !hasRGB && !hasSH {
		missing = append(missing, "color (red/green/blue or f_dc_0/1/2)")
	}
	if !hasScaleXYZ && !hasScale012 {
		missing = append(missing, "scale (scale_x/y/z or scale_0/1/2)")
	}
	if len(missing) > 0 {
		return 0, newInvalidFormatError(missing, ps.Names())
	}

	if hasRGB {
		return FormatRGB, nil
	}
	return FormatSH, nil
}
