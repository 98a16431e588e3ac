// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scan

import (
	"github.com/gomlx/skymap/kernels"
	"github.com/gomlx/skymap/pkg/core/intervals"
	"github.com/gomlx/skymap/pkg/core/tod"
)

// Extract builds the padded batch of the given detectors and intervals.
//
// Every interval is padded to ivals.MaxLength() positions: positions past the interval's last sample
// repeat the last sample, and are marked false in Batch.Real.
// The detectors and intervals must be valid (see tod.Detectors.Validate and intervals.List.Validate).
func Extract(det *tod.Detectors, ivals intervals.List, numComponents int) *kernels.Batch {
	var batch *kernels.Batch
	det.Data.ConstFlatData(func(data []float64) {
		batch = extractWithData(det, ivals, numComponents, data)
	})
	return batch
}

// extractWithData is like Extract, but with the detectors data already locked by the caller.
func extractWithData(det *tod.Detectors, ivals intervals.List, numComponents int, data []float64) *kernels.Batch {
	shape := kernels.BatchShape{
		NumDetectors: det.NumDetectors(),
		NumIntervals: len(ivals),
		MaxLength:    ivals.MaxLength(),
	}
	size := shape.Size()
	nnz := numComponents
	batch := &kernels.Batch{
		Shape:         shape,
		NumComponents: nnz,
		Pixels:        make([]int64, size),
		Weights:       make([]float64, size*nnz),
		Data:          make([]float64, size),
		Real:          make([]bool, size),
	}
	if size == 0 {
		return batch
	}

	det.Pixels.ConstFlatData(func(pixels []int64) {
		forEachPosition(det, ivals, func(detector, pos, sample int, isReal bool) {
			batch.Pixels[pos] = pixels[det.Pixels.RowOffset(det.PixelIndex[detector])+sample]
			batch.Data[pos] = data[det.Data.RowOffset(det.DataIndex[detector])+sample]
			batch.Real[pos] = isReal
		})
	})

	if det.HasUnitWeights() {
		for ii := range batch.Weights {
			batch.Weights[ii] = 1
		}
		return batch
	}
	det.Weights.ConstFlatData(func(weights []float64) {
		forEachPosition(det, ivals, func(detector, pos, sample int, _ bool) {
			from := det.Weights.RowOffset(det.WeightIndex[detector]) + sample*nnz
			copy(batch.Weights[pos*nnz:(pos+1)*nnz], weights[from:from+nnz])
		})
	})
	return batch
}

// forEachPosition calls fn for every position of the padded batch, in order, with the sample
// it reads from (clamped to the interval's last sample) and whether it is a real position.
func forEachPosition(det *tod.Detectors, ivals intervals.List, fn func(detector, pos, sample int, isReal bool)) {
	maxLength := ivals.MaxLength()
	pos := 0
	for detector := range det.NumDetectors() {
		for _, iv := range ivals {
			for offset := range maxLength {
				sample := iv.First + offset
				isReal := sample <= iv.Last
				if !isReal {
					sample = iv.Last
				}
				fn(detector, pos, sample, isReal)
				pos++
			}
		}
	}
}

// ScatterBack writes the values of the real positions of the batch back to the detectors timestream.
// Padding positions are ignored.
//
// values must have one entry per batch position, and batch must have been extracted from the same
// detectors and intervals.
func ScatterBack(batch *kernels.Batch, values []float64, det *tod.Detectors, ivals intervals.List) {
	det.Data.MutableFlatData(func(data []float64) {
		scatterWithData(batch, values, det, ivals, data)
	})
}

// scatterWithData is like ScatterBack, but with the detectors data already locked for writing by the caller.
func scatterWithData(batch *kernels.Batch, values []float64, det *tod.Detectors, ivals intervals.List, data []float64) {
	if batch.Shape.IsEmpty() {
		return
	}
	forEachPosition(det, ivals, func(detector, pos, sample int, isReal bool) {
		if isReal {
			data[det.Data.RowOffset(det.DataIndex[detector])+sample] = values[pos]
		}
	})
}
