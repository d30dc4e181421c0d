package scene

import (
	"encoding/json"
	"math"

	"github.com/golang/geo/r3"

	"github.com/splatcraft/splatcore/gaussian"
)

const (
	// Transport-path scale clamp. Paper-thin and exploded splats destroy
	// the receiving renderer's depth sorting; canonical decode output is
	// left exact and the clamp is applied only here.
	transportScaleMin = 1e-3
	transportScaleMax = 1e3

	// cameraDistanceFactor scales scene extent into an initial camera
	// distance for the receiving renderer.
	cameraDistanceFactor = 5.0
)

// SplatPayload is the flat JSON layout of one Gaussian set: length-3N
// position/color/scale arrays, a length-N opacity array, and a length-4N
// rotation array in (x,y,z,w) order. No downsampling is applied; the
// external renderer handles full resolution.
type SplatPayload struct {
	Positions []float32 `json:"positions"`
	Colors    []float32 `json:"colors"`
	Opacities []float32 `json:"opacities"`
	Scales    []float32 `json:"scales"`
	Rotations []float32 `json:"rotations"`
	Count     int       `json:"count"`
}

// ObjectPayload wraps one object's payload with its identity and world
// transform for multi-object scenes.
type ObjectPayload struct {
	NodeName  string       `json:"node_name"`
	Data      SplatPayload `json:"data"`
	Transform Transform    `json:"transform"`
}

// Bounds describes the positional extent of a scene, used by the receiving
// renderer to frame an initial view.
type Bounds struct {
	Center [3]float64 `json:"center"`
	Min    [3]float64 `json:"min"`
	Max    [3]float64 `json:"max"`
	Size   float64    `json:"size"`
}

// ScenePayload is the multi-object transport structure.
type ScenePayload struct {
	Objects        []ObjectPayload `json:"objects"`
	Bounds         Bounds          `json:"bounds"`
	CameraDistance float64         `json:"camera_distance"`
}

// PayloadFromSet flattens a set into its transport layout, clamping scales
// to the transport-safe range.
func PayloadFromSet(set *gaussian.Set) SplatPayload {
	n := set.Size()
	p := SplatPayload{
		Positions: make([]float32, 0, 3*n),
		Colors:    make([]float32, 0, 3*n),
		Opacities: make([]float32, 0, n),
		Scales:    make([]float32, 0, 3*n),
		Rotations: make([]float32, 0, 4*n),
		Count:     n,
	}
	for i := 0; i < n; i++ {
		p.Positions = appendVector(p.Positions, set.Positions[i])
		p.Colors = appendVector(p.Colors, set.Colors[i])
		p.Opacities = append(p.Opacities, float32(set.Opacities[i]))
		s := set.Scales[i]
		p.Scales = appendVector(p.Scales, r3.Vector{
			X: clampScale(s.X),
			Y: clampScale(s.Y),
			Z: clampScale(s.Z),
		})
		q := set.Rotations[i]
		p.Rotations = append(p.Rotations,
			float32(q.Imag), float32(q.Jmag), float32(q.Kmag), float32(q.Real))
	}
	return p
}

func appendVector(dst []float32, v r3.Vector) []float32 {
	return append(dst, float32(v.X), float32(v.Y), float32(v.Z))
}

func clampScale(v float64) float64 {
	return math.Min(math.Max(v, transportScaleMin), transportScaleMax)
}

// MarshalSet serializes a single set as a bare payload; the implicit
// transform is identity.
func MarshalSet(set *gaussian.Set) ([]byte, error) {
	return json.Marshal(PayloadFromSet(set))
}

// ScenePayload flattens every object in the store into a multi-object
// payload, with bounds and camera distance computed over all included
// positions. Objects are emitted in name order.
func (s *Store) ScenePayload() ScenePayload {
	payload := ScenePayload{Objects: []ObjectPayload{}}
	bounds := gaussian.NewMetaData()
	var centerSum r3.Vector
	totalPoints := 0

	for _, name := range s.Names() {
		set, ok := s.Lookup(name)
		if !ok {
			continue
		}
		transform, _ := s.Transform(name)
		payload.Objects = append(payload.Objects, ObjectPayload{
			NodeName:  name,
			Data:      PayloadFromSet(set),
			Transform: transform,
		})
		if set.Size() > 0 {
			meta := set.MetaData()
			bounds.Merge(meta.Min())
			bounds.Merge(meta.Max())
			centerSum = centerSum.Add(meta.Center().Mul(float64(set.Size())))
			totalPoints += set.Size()
		}
	}

	if totalPoints > 0 {
		center := centerSum.Mul(1 / float64(totalPoints))
		lo, hi := bounds.Min(), bounds.Max()
		payload.Bounds = Bounds{
			Center: [3]float64{center.X, center.Y, center.Z},
			Min:    [3]float64{lo.X, lo.Y, lo.Z},
			Max:    [3]float64{hi.X, hi.Y, hi.Z},
			Size:   bounds.Extent(),
		}
		payload.CameraDistance = payload.Bounds.Size * cameraDistanceFactor
	}
	return payload
}

// MarshalScene serializes the whole store for transport.
func (s *Store) MarshalScene() ([]byte, error) {
	return json.Marshal(s.ScenePayload())
}
