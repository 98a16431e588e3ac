// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiled

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// resolvePixels converts global pixel indices to indices into the flattened local map
// (local_submap * submapSize + subpix), along with the validity mask.
//
// Invalid pixels (negative, at or beyond numPixels or in submaps not held locally) get
// index 0 and valid=false, so the index can always be safely used for Gather or Scatter.
func resolvePixels(pixels, global2local *Node, submapSize int, numPixels int64) (flatIdx, valid *Node) {
	g := pixels.Graph()
	dtype := pixels.DType()
	zero := Scalar(g, dtype, 0)

	inUniverse := LogicalAnd(GreaterOrEqual(pixels, zero), LessThan(pixels, Scalar(g, dtype, float64(numPixels))))
	safePixels := Where(inUniverse, pixels, zero)
	size := Scalar(g, dtype, float64(submapSize))
	submap := Div(safePixels, size)
	subpix := Mod(safePixels, size)

	numSubmaps := global2local.Shape().Dimensions[0]
	inRange := LessThan(submap, Scalar(g, dtype, float64(numSubmaps)))
	safeSubmap := Where(inRange, submap, zero)
	local := Gather(global2local, ExpandAxes(safeSubmap, -1))

	valid = LogicalAnd(LogicalAnd(inUniverse, inRange), GreaterOrEqual(local, zero))
	flatIdx = Where(valid, Add(Mul(local, size), subpix), zero)
	return
}

// scanGraph builds the scan transform for a flat batch:
//
//   - pixels: [batchSize] int64 global pixel indices.
//   - weights: [batchSize, numComponents].
//   - data: [batchSize] prior timestream values.
//   - global2local: [numSubmaps] int64.
//   - mapData: [numLocalSubmaps * submapSize, numComponents].
//   - scale: scalar.
//
// It returns the new timestream values, shaped [batchSize].
func scanGraph(key execKey, pixels, weights, data, global2local, mapData, scale *Node) *Node {
	flatIdx, valid := resolvePixels(pixels, global2local, key.submapSize, key.numPixels)
	values := Gather(mapData, ExpandAxes(flatIdx, -1))
	values = Where(valid, values, ZerosLike(values))
	update := Mul(ReduceSum(Mul(values, weights), -1), scale)
	switch {
	case key.keepPrior && key.subtract:
		return Sub(data, update)
	case key.keepPrior:
		return Add(data, update)
	case key.subtract:
		return Neg(update)
	default:
		return update
	}
}

// binGraph builds the bin transform for a flat batch, with the same inputs as scanGraph.
// Padding positions must have been given a negative pixel, so they are masked out as invalid.
//
// It returns the updated map, shaped like mapData.
func binGraph(key execKey, pixels, weights, data, global2local, mapData, scale *Node) *Node {
	flatIdx, valid := resolvePixels(pixels, global2local, key.submapSize, key.numPixels)
	factors := Mul(data, scale)
	if key.subtract {
		factors = Neg(factors)
	}
	contributions := Mul(weights, ExpandAxes(factors, -1))
	contributions = Where(valid, contributions, ZerosLike(contributions))
	base := mapData
	if !key.keepPrior {
		base = ZerosLike(mapData)
	}
	return ScatterSum(base, ExpandAxes(flatIdx, -1), contributions, false, false)
}
