// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// BatchShape is the rectangular shape of a padded batch: every (detector, interval) pair is
// padded to MaxLength positions.
type BatchShape struct {
	NumDetectors, NumIntervals, MaxLength int
}

// Size is the number of positions in the batch: NumDetectors * NumIntervals * MaxLength.
func (s BatchShape) Size() int {
	return s.NumDetectors * s.NumIntervals * s.MaxLength
}

// IsEmpty returns whether the batch has no positions.
func (s BatchShape) IsEmpty() bool {
	return s.Size() == 0
}

// Shape returns the positions shape with the given dtype and optional trailing dimensions.
func (s BatchShape) Shape(dtype dtypes.DType, extraDims ...int) shapes.Shape {
	dims := append([]int{s.NumDetectors, s.NumIntervals, s.MaxLength}, extraDims...)
	return shapes.Make(dtype, dims...)
}

// String implements fmt.Stringer.
func (s BatchShape) String() string {
	return fmt.Sprintf("[%d detectors x %d intervals x %d samples]", s.NumDetectors, s.NumIntervals, s.MaxLength)
}

// Batch of samples, extracted from packed detector arrays and padded to a rectangular shape.
//
// Positions past the end of an interval repeat the interval's last sample, and are marked false in Real.
// All slices are flat, in [NumDetectors, NumIntervals, MaxLength] order (with a trailing
// NumComponents axis for Weights).
type Batch struct {
	Shape         BatchShape
	NumComponents int

	Pixels  []int64
	Weights []float64
	Data    []float64

	// Real marks the positions that correspond to genuine samples (as opposed to padding).
	Real []bool
}

// Validate checks that the slices sizes are consistent with the shape.
func (b *Batch) Validate() error {
	size := b.Shape.Size()
	if b.NumComponents <= 0 {
		return errors.Errorf("batch number of components must be > 0, got %d", b.NumComponents)
	}
	if len(b.Pixels) != size || len(b.Data) != size || len(b.Real) != size {
		return errors.Errorf("batch of shape %s requires %d positions, got pixels=%d, data=%d, real=%d",
			b.Shape, size, len(b.Pixels), len(b.Data), len(b.Real))
	}
	if len(b.Weights) != size*b.NumComponents {
		return errors.Errorf("batch of shape %s with %d components requires %d weights, got %d",
			b.Shape, b.NumComponents, size*b.NumComponents, len(b.Weights))
	}
	return nil
}

// MapView is a read-only view of a local map, along with the pixel distribution needed to resolve
// global pixel indices.
type MapView struct {
	SubmapSize    int
	NumComponents int

	// NumPixels in the global pixel universe. If it is not a multiple of SubmapSize, the last global
	// submap is partial and its tail pixels don't resolve.
	NumPixels int64

	// Global2Local table, one entry per global submap, with the local submap id or -1 if not held locally.
	Global2Local []int64

	// Data of the local map, with layout [NumLocalSubmaps, SubmapSize, NumComponents].
	Data []float64
}

// NumLocalSubmaps in the view.
func (v *MapView) NumLocalSubmaps() int {
	return len(v.Data) / (v.SubmapSize * v.NumComponents)
}

// Validate checks that the view is well-formed.
func (v *MapView) Validate() error {
	if v.SubmapSize <= 0 {
		return errors.Errorf("submap size must be > 0, got %d", v.SubmapSize)
	}
	if v.NumComponents <= 0 {
		return errors.Errorf("map number of components must be > 0, got %d", v.NumComponents)
	}
	if len(v.Global2Local) == 0 {
		return errors.New("map global-to-local table is empty")
	}
	size, numSubmaps := int64(v.SubmapSize), int64(len(v.Global2Local))
	if v.NumPixels <= (numSubmaps-1)*size || v.NumPixels > numSubmaps*size {
		return errors.Errorf("map has %d pixels, which don't fit exactly in %d submaps of %d pixels",
			v.NumPixels, numSubmaps, v.SubmapSize)
	}
	if len(v.Data)%(v.SubmapSize*v.NumComponents) != 0 {
		return errors.Errorf("map data has %d values, not a multiple of submap size (%d) x components (%d)",
			len(v.Data), v.SubmapSize, v.NumComponents)
	}
	numLocal := int64(v.NumLocalSubmaps())
	for submap, local := range v.Global2Local {
		if local < -1 || local >= numLocal {
			return errors.Errorf("global-to-local entry for submap %d is %d, out of range [-1, %d)", submap, local, numLocal)
		}
	}
	return nil
}

// Resolve returns the index of the pixel in the map data (without the components axis),
// or -1 if the pixel doesn't resolve to a local submap.
func (v *MapView) Resolve(pixel int64) int {
	if pixel < 0 || pixel >= v.NumPixels {
		return -1
	}
	size := int64(v.SubmapSize)
	submap := pixel / size
	if submap >= int64(len(v.Global2Local)) {
		return -1
	}
	local := v.Global2Local[submap]
	if local < 0 {
		return -1
	}
	return int(local*size + pixel%size)
}

// CheckCompatible returns an error if the batch and the view disagree on the number of components.
func CheckCompatible(batch *Batch, view *MapView) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if err := view.Validate(); err != nil {
		return err
	}
	if batch.NumComponents != view.NumComponents {
		return errors.Errorf("batch has %d components, but the map has %d", batch.NumComponents, view.NumComponents)
	}
	return nil
}
