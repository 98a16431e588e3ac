// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package synth

import (
	"math"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights(t *testing.T) {
	assert.Equal(t, []float64{1}, Weights(0.3, 1))
	w := Weights(math.Pi/8, 3)
	assert.Equal(t, 1.0, w[0])
	assert.InDelta(t, math.Sqrt2/2, w[1], 1e-12)
	assert.InDelta(t, math.Sqrt2/2, w[2], 1e-12)
	w = Weights(math.Pi/8, 5)
	assert.InDelta(t, 0, w[3], 1e-12)
	assert.InDelta(t, 1, w[4], 1e-12)
}

func TestObservation(t *testing.T) {
	config := Config{NumPixels: 1000, NumDetectors: 3, NumSamples: 200, NumComponents: 3,
		FlaggedFraction: 0.1, GlitchFraction: 0.05, Seed: 42}
	obs := must.M1(Observation("obs", config))
	det := obs.Detectors
	require.NoError(t, det.Validate(3))
	require.NoError(t, obs.Intervals.Validate(det.NumSamples()))
	assert.Equal(t, []int{2, 1, 0}, det.DataIndex)

	// Flagged samples have invalid pixels, and are excluded from the intervals.
	numFlagged := 0
	for detector := range 3 {
		pixels := det.Pixels.Row(det.PixelIndex[detector])
		for sample, pixel := range pixels {
			if obs.Flags[sample]&FlagInvalid != 0 {
				assert.Equal(t, int64(-1), pixel)
				numFlagged++
			} else {
				assert.GreaterOrEqual(t, pixel, int64(0))
				assert.Less(t, pixel, int64(1000))
			}
		}
	}
	assert.Greater(t, numFlagged, 0)
	for _, iv := range obs.Intervals {
		for sample := iv.First; sample <= iv.Last; sample++ {
			assert.Zero(t, obs.Flags[sample])
		}
	}

	// Deterministic.
	again := must.M1(Observation("obs", config))
	assert.Equal(t, det.Data.Row(0), again.Detectors.Data.Row(0))
	assert.Equal(t, obs.UID, again.UID)

	_, err := Observation("bad", Config{NumPixels: 0, NumComponents: 1})
	require.Error(t, err)
	_, err = Observation("bad", Config{NumPixels: 10, NumComponents: 1, FlaggedFraction: 2})
	require.Error(t, err)
}

func TestObservations(t *testing.T) {
	config := Config{NumPixels: 100, NumDetectors: 2, NumSamples: 50, NumComponents: 1, Seed: 7}
	observations := must.M1(Observations("sim", 3, config))
	require.Len(t, observations, 3)
	assert.Equal(t, "sim-0002", observations[2].Name)
	assert.NotEqual(t, observations[0].Detectors.Data.Row(0), observations[1].Detectors.Data.Row(0))
	assert.NotEqual(t, observations[0].UID, observations[1].UID)
}
