// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiled

import (
	"fmt"
	"testing"

	"github.com/gomlx/skymap/kernels"
	"github.com/gomlx/skymap/kernels/host"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBatch has one detector with one interval of 7 samples, padded to 8.
func testBatch() (*kernels.Batch, *kernels.MapView) {
	batch := &kernels.Batch{
		Shape:         kernels.BatchShape{NumDetectors: 1, NumIntervals: 1, MaxLength: 8},
		NumComponents: 3,
		Pixels:        []int64{0, 5, -1, 7, 11, 100, 2, 2},
		Data:          []float64{1, 2, 3, 4, 5, 6, 7, 7},
		Real:          []bool{true, true, true, true, true, true, true, false},
	}
	for ii := range batch.Shape.Size() {
		batch.Weights = append(batch.Weights, 1, 0.5*float64(ii), -0.25)
	}
	view := &kernels.MapView{
		SubmapSize:    4,
		NumComponents: 3,
		NumPixels:     12,
		Global2Local:  []int64{0, -1, 1},
	}
	for ii := range 2 * 4 * 3 {
		view.Data = append(view.Data, float64(ii)+1)
	}
	return batch, view
}

func TestKernel_MatchesHost(t *testing.T) {
	k := must.M1(New("go"))
	defer k.Finalize()
	assert.Equal(t, KernelName, k.Name())
	reference := must.M1(host.New("0"))

	batch, view := testBatch()
	for _, mode := range []kernels.Mode{kernels.ModeOverwrite, kernels.ModeAccumulate, kernels.ModeSubtract} {
		for _, zeroFirst := range []bool{false, true} {
			op := kernels.Op{Mode: mode, ZeroFirst: zeroFirst, Scale: 1.5}
			t.Run(fmt.Sprintf("%s/zeroFirst=%v", mode, zeroFirst), func(t *testing.T) {
				want := must.M1(reference.Scan(batch, view, op))
				got, err := k.Scan(batch, view, op)
				require.NoError(t, err)
				assert.InDeltaSlice(t, want, got, 1e-9)

				want = must.M1(reference.Bin(batch, view, op))
				got, err = k.Bin(batch, view, op)
				require.NoError(t, err)
				assert.InDeltaSlice(t, want, got, 1e-9)
			})
		}
	}
}

func TestKernel_InvalidSamples(t *testing.T) {
	k := must.M1(New("go"))
	defer k.Finalize()
	batch, view := testBatch()

	// Pixel -1 (flagged), 5 (unowned submap 1) and 100 (beyond the table) keep their prior value.
	got, err := k.Scan(batch, view, kernels.Op{Mode: kernels.ModeAccumulate, Scale: 1})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got[1])
	assert.Equal(t, 3.0, got[2])
	assert.Equal(t, 6.0, got[5])

	// Without local submaps, the map is never read.
	view.Global2Local = []int64{-1, -1, -1}
	view.Data = nil
	got, err = k.Scan(batch, view, kernels.Op{Mode: kernels.ModeSubtract, Scale: 1})
	require.NoError(t, err)
	assert.Equal(t, batch.Data, got)
	binned, err := k.Bin(batch, view, kernels.Op{Mode: kernels.ModeAccumulate, Scale: 1})
	require.NoError(t, err)
	assert.Empty(t, binned)
}

func TestKernel_Finalize(t *testing.T) {
	k := must.M1(New("go"))
	k.Finalize()
	batch, view := testBatch()
	_, err := k.Scan(batch, view, kernels.Op{Mode: kernels.ModeAccumulate, Scale: 1})
	require.Error(t, err)
}
