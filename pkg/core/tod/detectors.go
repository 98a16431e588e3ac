// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tod

import (
	"github.com/pkg/errors"
)

// Detectors addresses the packed arrays of a set of detectors.
//
// Detector i reads its pixel indices from row PixelIndex[i] of Pixels, its weights from row
// WeightIndex[i] of Weights and its timestream from row DataIndex[i] of Data.
// All three index slices have one entry per detector. Pixel and weight rows may be shared, data rows may not.
type Detectors struct {
	// Pixels holds the global pixel index of each sample (width 1). Negative values mark flagged samples.
	Pixels     *Packed[int64]
	PixelIndex []int

	// Weights holds the pointing weight of each map component for each sample (width = number of components).
	// If nil, unit intensity weights are used (only valid for maps with one component), and WeightIndex is ignored.
	Weights     *Packed[float64]
	WeightIndex []int

	// Data holds the timestream (width 1). It is the only array modified when scanning a map.
	Data      *Packed[float64]
	DataIndex []int
}

// NumDetectors addressed.
func (d *Detectors) NumDetectors() int {
	return len(d.DataIndex)
}

// NumSamples per detector.
func (d *Detectors) NumSamples() int {
	if d.Data == nil {
		return 0
	}
	return d.Data.Samples()
}

// HasUnitWeights returns whether no weights are given, in which case they are taken to be 1.
func (d *Detectors) HasUnitWeights() bool {
	return d.Weights == nil
}

// Validate checks the consistency of the packed arrays and row indices for a map with numComponents components.
func (d *Detectors) Validate(numComponents int) error {
	if numComponents <= 0 {
		return errors.Errorf("number of components must be > 0, got %d", numComponents)
	}
	if d.Pixels == nil || d.Data == nil {
		return errors.New("detectors require both pixels and data packed arrays")
	}
	if d.Pixels.Width() != 1 {
		return errors.Errorf("pixels packed array must have width 1, got %d", d.Pixels.Width())
	}
	if d.Data.Width() != 1 {
		return errors.Errorf("data packed array must have width 1, got %d", d.Data.Width())
	}
	numSamples := d.Data.Samples()
	if d.Pixels.Samples() != numSamples {
		return errors.Errorf("pixels have %d samples per row, but data has %d", d.Pixels.Samples(), numSamples)
	}
	numDetectors := len(d.DataIndex)
	if len(d.PixelIndex) != numDetectors {
		return errors.Errorf("pixel index has %d entries, but data index has %d: they must match",
			len(d.PixelIndex), numDetectors)
	}
	if err := checkRows("pixel", d.PixelIndex, d.Pixels.Rows()); err != nil {
		return err
	}
	if err := checkRows("data", d.DataIndex, d.Data.Rows()); err != nil {
		return err
	}
	written := make(map[int]int, numDetectors)
	for detector, row := range d.DataIndex {
		if previous, found := written[row]; found {
			return errors.Errorf("detectors #%d and #%d both write data row %d: each detector needs its own data row",
				previous, detector, row)
		}
		written[row] = detector
	}
	if d.Weights == nil {
		if numComponents != 1 {
			return errors.Errorf("unit weights can only be used with 1 map component, got %d components", numComponents)
		}
		return nil
	}
	if d.Weights == d.Data {
		return errors.New("weights and data must be different packed arrays")
	}
	if d.Weights.Width() != numComponents {
		return errors.Errorf("weights packed array has width %d, but the map has %d components",
			d.Weights.Width(), numComponents)
	}
	if d.Weights.Samples() != numSamples {
		return errors.Errorf("weights have %d samples per row, but data has %d", d.Weights.Samples(), numSamples)
	}
	if len(d.WeightIndex) != numDetectors {
		return errors.Errorf("weight index has %d entries, but data index has %d: they must match",
			len(d.WeightIndex), numDetectors)
	}
	return checkRows("weight", d.WeightIndex, d.Weights.Rows())
}

func checkRows(name string, index []int, numRows int) error {
	for detector, row := range index {
		if row < 0 || row >= numRows {
			return errors.Errorf("%s index of detector #%d is row %d, out of range [0, %d)", name, detector, row, numRows)
		}
	}
	return nil
}

// Memory used by the packed arrays, in bytes.
func (d *Detectors) Memory() uintptr {
	var total uintptr
	if d.Pixels != nil {
		total += d.Pixels.Memory()
	}
	if d.Weights != nil {
		total += d.Weights.Memory()
	}
	if d.Data != nil {
		total += d.Data.Memory()
	}
	return total
}
