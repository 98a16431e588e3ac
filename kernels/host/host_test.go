// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"testing"

	"github.com/gomlx/skymap/kernels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine(t *testing.T) {
	// Sizes around the usual vector lane counts.
	for _, n := range []int{0, 1, 2, 3, 4, 5, 7, 8, 9, 15, 16, 17, 33} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			prior := make([]float64, n)
			update := make([]float64, n)
			for ii := range n {
				prior[ii] = float64(ii) + 0.5
				update[ii] = float64(2*ii) - 3
			}
			out := make([]float64, n)
			combine(out, prior, update, -0.25)
			for ii := range n {
				assert.Equalf(t, prior[ii]-0.25*update[ii], out[ii], "position %d", ii)
			}
			combine(out, nil, update, 3)
			for ii := range n {
				assert.Equalf(t, 3*update[ii], out[ii], "position %d", ii)
			}
		})
	}
}

func TestNew(t *testing.T) {
	k, err := New("3")
	require.NoError(t, err)
	assert.Equal(t, KernelName, k.Name())
	assert.Equal(t, 3, k.pool.MaxParallelism())
	assert.Contains(t, k.Description(), "parallelism=3")

	_, err = New("many")
	require.Error(t, err)

	kernel, err := kernels.NewWithConfig("host:0")
	require.NoError(t, err)
	assert.Equal(t, KernelName, kernel.Name())
	kernel.Finalize()
}

// twoDetectorBatch: two detectors, two intervals padded to length 3, two components.
// The last position of each second interval is padding, repeating the previous sample.
func twoDetectorBatch() *kernels.Batch {
	return &kernels.Batch{
		Shape:         kernels.BatchShape{NumDetectors: 2, NumIntervals: 2, MaxLength: 3},
		NumComponents: 2,
		Pixels: []int64{
			0, 1, 2, 5, -1, -1,
			3, 3, 6, 9, 7, 7,
		},
		Weights: []float64{
			1, 0, 1, 1, 1, 2, 1, 1, 1, 1, 1, 1,
			1, 1, 1, 1, 2, 0, 1, 0, 0.5, 1, 0.5, 1,
		},
		Data: []float64{
			1, 1, 1, 1, 1, 1,
			2, 2, 2, 2, 2, 2,
		},
		Real: []bool{
			true, true, true, true, true, false,
			true, true, true, true, true, false,
		},
	}
}

// twoSubmapView: submaps of 4 pixels, global submaps 0 and 1 held locally (in reverse order), submap 2 not.
func twoSubmapView() *kernels.MapView {
	data := make([]float64, 2*4*2)
	for ii := range data {
		data[ii] = float64(ii)
	}
	return &kernels.MapView{SubmapSize: 4, NumComponents: 2, NumPixels: 12, Global2Local: []int64{1, 0, -1}, Data: data}
}

func TestKernel_Scan(t *testing.T) {
	k, err := New("2")
	require.NoError(t, err)
	batch, view := twoDetectorBatch(), twoSubmapView()

	// Pixel p in submap 0 -> local 1, flat index 4+p; pixel p in submap 1 -> local 0, flat index p-4.
	mapValue := func(pixel int64, c int) float64 {
		idx := view.Resolve(pixel)
		return view.Data[idx*2+c]
	}
	want := make([]float64, batch.Shape.Size())
	for ii, pixel := range batch.Pixels {
		if view.Resolve(pixel) < 0 {
			want[ii] = batch.Data[ii]
			continue
		}
		want[ii] = batch.Data[ii] + 0.5*(mapValue(pixel, 0)*batch.Weights[2*ii]+mapValue(pixel, 1)*batch.Weights[2*ii+1])
	}
	got, err := k.Scan(batch, view, kernels.Op{Mode: kernels.ModeAccumulate, Scale: 0.5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)

	// Pixel 0 -> flat index 4: values (8, 9), weights (1, 0).
	assert.Equal(t, 1+0.5*8, got[0])
	// Pixel 9 is in submap 2, not held locally.
	assert.Equal(t, 2.0, got[9])

	// Mismatched components.
	view.NumComponents = 1
	_, err = k.Scan(batch, view, kernels.Op{Mode: kernels.ModeAccumulate, Scale: 1})
	require.Error(t, err)
}

func TestKernel_Bin(t *testing.T) {
	k, err := New("")
	require.NoError(t, err)
	batch, view := twoDetectorBatch(), twoSubmapView()

	got, err := k.Bin(batch, view, kernels.Op{Mode: kernels.ModeAccumulate, ZeroFirst: true, Scale: 1})
	require.NoError(t, err)
	want := make([]float64, len(view.Data))
	for ii, pixel := range batch.Pixels {
		idx := view.Resolve(pixel)
		if !batch.Real[ii] || idx < 0 {
			continue
		}
		for c := range 2 {
			want[idx*2+c] += batch.Weights[2*ii+c] * batch.Data[ii]
		}
	}
	assert.InDeltaSlice(t, want, got, 1e-12)

	// Pixel 3 (local 1, subpix 3: flat 7) is hit twice by detector 1 with weights (1,1) and (1,1), data 2.
	assert.Equal(t, []float64{4, 4}, got[14:16])

	// Subtracting from the current map.
	got, err = k.Bin(batch, view, kernels.Op{Mode: kernels.ModeSubtract, Scale: 1})
	require.NoError(t, err)
	for ii := range want {
		assert.InDelta(t, view.Data[ii]-want[ii], got[ii], 1e-12)
	}
}
