// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/skymap/pkg/core/pixels"
	"github.com/gomlx/skymap/pkg/core/tod"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountHitSubmaps(t *testing.T) {
	const numPixels, submapSize = 24, 4
	dists := must.M1(pixels.Partition(numPixels, submapSize, 2))
	workers := make([]*worker, len(dists))
	for ii, dist := range dists {
		workers[ii] = &worker{id: ii, localMap: must.M1(pixels.NewLocalMap(dist, 1))}
	}
	fullSky := must.M1(pixels.Partition(numPixels, submapSize, 1))[0]
	reference := &worker{id: -1, localMap: must.M1(pixels.NewLocalMap(fullSky, 1))}

	// Submaps 0 and 5 are hit: flagged and out-of-range pixels are ignored.
	det := &tod.Detectors{
		Pixels:     must.M1(tod.FromFlatData([]int64{1, 2, -1, 22, 30}, 1, 5, 1)),
		PixelIndex: []int{0},
		Data:       must.M1(tod.NewPacked[float64](1, 5, 1)),
		DataIndex:  []int{0},
	}
	obs := tod.NewObservation("obs", det)
	require.NoError(t, countHitSubmaps([]*tod.Observation{obs}, numPixels, submapSize, append(workers, reference)))

	assert.Equal(t, 2, reference.hitSubmaps)
	var want, got int
	for _, w := range workers {
		for _, submap := range []int64{0, 5} {
			if w.localMap.Distribution().Global2Local()[submap] != pixels.Unowned {
				want++
			}
		}
		got += w.hitSubmaps
	}
	assert.Equal(t, 2, want)
	assert.Equal(t, want, got)

	// Invalid geometry is reported.
	assert.Error(t, countHitSubmaps([]*tod.Observation{obs}, numPixels, 0, workers))
}
