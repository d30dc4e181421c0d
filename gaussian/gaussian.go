// Package gaussian decodes 3D Gaussian splat assets into a canonical
// in-memory representation.
//
// A splat file stores per-point attributes in a training-friendly form:
// opacity as a logit, scale in log-space, color either as raw RGB bytes or as
// the DC term of a spherical-harmonic expansion, and the orientation
// quaternion in whichever component order the writer preferred. Decoding
// applies the matching activation to each attribute and produces a Set whose
// arrays hold physical quantities only.
package gaussian

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// unitNormTolerance bounds how far a decoded rotation may drift from unit
// length before Validate rejects the set.
const unitNormTolerance = 1e-5

// Set is the canonical result of decoding one splat source. All slices share
// the same length. A Set is immutable after decode; a refresh produces a
// brand-new Set rather than mutating an existing one, so concurrent readers
// never observe partial state.
type Set struct {
	// Positions holds world-space centers.
	Positions []r3.Vector

	// Opacities holds post-sigmoid values in [0,1], one per point.
	Opacities []float64

	// Scales holds per-axis extents, every component finite and positive.
	Scales []r3.Vector

	// Rotations holds unit quaternions. quat.Number keeps the scalar part
	// in Real; the canonical transport order (x,y,z,w) maps to
	// (Imag, Jmag, Kmag, Real).
	Rotations []quat.Number

	// Colors holds RGB in [0,1].
	Colors []r3.Vector

	// SH optionally holds higher-order spherical-harmonic coefficients,
	// one row per point. Nil for sources that carry none.
	SH [][]float64

	meta MetaData
}

// Size returns the number of splats in the set.
func (s *Set) Size() int {
	return len(s.Positions)
}

// MetaData returns the positional bounds accumulated at decode time.
func (s *Set) MetaData() MetaData {
	return s.meta
}

// Validate checks the set invariants: equal array lengths, unit rotations,
// finite positive scales, and opacity/color components in [0,1]. Decode
// output always passes; a failure here indicates a defect upstream.
func (s *Set) Validate() error {
	n := len(s.Positions)
	if len(s.Opacities) != n || len(s.Scales) != n || len(s.Rotations) != n || len(s.Colors) != n {
		return errors.Errorf(
			"mismatched array lengths: %d positions, %d opacities, %d scales, %d rotations, %d colors",
			n, len(s.Opacities), len(s.Scales), len(s.Rotations), len(s.Colors))
	}
	if s.SH != nil && len(s.SH) != n {
		return errors.Errorf("mismatched array lengths: %d positions, %d sh rows", n, len(s.SH))
	}
	for i := 0; i < n; i++ {
		if norm := quat.Abs(s.Rotations[i]); math.Abs(norm-1) > unitNormTolerance {
			return errors.Errorf("rotation %d has norm %f", i, norm)
		}
		sc := s.Scales[i]
		for _, c := range []float64{sc.X, sc.Y, sc.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
				return errors.Errorf("scale %d has non-positive or non-finite component %f", i, c)
			}
		}
		if o := s.Opacities[i]; o < 0 || o > 1 {
			return errors.Errorf("opacity %d out of range: %f", i, o)
		}
		col := s.Colors[i]
		for _, c := range []float64{col.X, col.Y, col.Z} {
			if c < 0 || c > 1 {
				return errors.Errorf("color %d has component %f outside [0,1]", i, c)
			}
		}
	}
	return nil
}

// MetaData tracks the positional bounding box of a set.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	totalX, totalY, totalZ float64
	count                  int
}

// NewMetaData returns bounds ready to merge points into.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge accumulates one position into the bounds.
func (meta *MetaData) Merge(v r3.Vector) {
	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}
	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
	meta.totalX += v.X
	meta.totalY += v.Y
	meta.totalZ += v.Z
	meta.count++
}

// Min returns the minimum corner of the bounds.
func (meta MetaData) Min() r3.Vector {
	return r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ}
}

// Max returns the maximum corner of the bounds.
func (meta MetaData) Max() r3.Vector {
	return r3.Vector{X: meta.MaxX, Y: meta.MaxY, Z: meta.MaxZ}
}

// Center returns the mean of the merged positions.
func (meta MetaData) Center() r3.Vector {
	if meta.count == 0 {
		return r3.Vector{}
	}
	n := float64(meta.count)
	return r3.Vector{X: meta.totalX / n, Y: meta.totalY / n, Z: meta.totalZ / n}
}

// Extent returns the length of the bounding-box diagonal, the "size" used to
// derive an initial camera distance for a receiving renderer.
func (meta MetaData) Extent() float64 {
	if meta.count == 0 {
		return 0
	}
	return meta.Max().Sub(meta.Min()).Norm()
}
