// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	for _, mode := range []Mode{ModeOverwrite, ModeAccumulate, ModeSubtract} {
		assert.True(t, mode.IsValid())
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
	parsed, err := ParseMode("Subtract")
	require.NoError(t, err)
	assert.Equal(t, ModeSubtract, parsed)
	_, err = ParseMode("add")
	require.Error(t, err)
	assert.False(t, Mode(7).IsValid())
	assert.Equal(t, "Mode(7)", Mode(7).String())
}

func TestOp_Coefficients(t *testing.T) {
	for _, tc := range []struct {
		op         Op
		keep, coef float64
	}{
		{Op{Mode: ModeOverwrite, Scale: 2}, 0, 2},
		{Op{Mode: ModeOverwrite, ZeroFirst: true, Scale: 2}, 0, 2},
		{Op{Mode: ModeAccumulate, Scale: 2}, 1, 2},
		{Op{Mode: ModeAccumulate, ZeroFirst: true, Scale: 2}, 0, 2},
		{Op{Mode: ModeSubtract, Scale: 2}, 1, -2},
		{Op{Mode: ModeSubtract, ZeroFirst: true, Scale: 2}, 0, -2},
		{Op{Mode: ModeAccumulate, Scale: -0.5}, 1, -0.5},
	} {
		keep, coef := tc.op.Coefficients()
		assert.Equalf(t, tc.keep, keep, "keep for %s", tc.op)
		assert.Equalf(t, tc.coef, coef, "coef for %s", tc.op)
		assert.Equal(t, tc.keep != 0, tc.op.KeepsPrior())
	}
}

func TestBatch(t *testing.T) {
	shape := BatchShape{NumDetectors: 2, NumIntervals: 3, MaxLength: 4}
	assert.Equal(t, 24, shape.Size())
	assert.False(t, shape.IsEmpty())
	assert.True(t, BatchShape{NumDetectors: 2}.IsEmpty())
	assert.Equal(t, []int{2, 3, 4, 3}, shape.Shape(dtypes.Float64, 3).Dimensions)

	batch := &Batch{
		Shape:         shape,
		NumComponents: 3,
		Pixels:        make([]int64, 24),
		Weights:       make([]float64, 72),
		Data:          make([]float64, 24),
		Real:          make([]bool, 24),
	}
	require.NoError(t, batch.Validate())
	batch.Weights = batch.Weights[:24]
	require.Error(t, batch.Validate())
	batch.Weights = make([]float64, 72)
	batch.Real = batch.Real[:1]
	require.Error(t, batch.Validate())
}

func TestMapView(t *testing.T) {
	view := &MapView{
		SubmapSize:    4,
		NumComponents: 1,
		NumPixels:     12,
		Global2Local:  []int64{-1, 1, 0},
		Data:          make([]float64, 8),
	}
	require.NoError(t, view.Validate())
	assert.Equal(t, 2, view.NumLocalSubmaps())
	assert.Equal(t, -1, view.Resolve(-1))
	assert.Equal(t, -1, view.Resolve(2))
	assert.Equal(t, 6, view.Resolve(6))
	assert.Equal(t, 1, view.Resolve(9))
	assert.Equal(t, -1, view.Resolve(12))

	// Partial last submap: pixels 10 and 11 are beyond the universe.
	view.NumPixels = 10
	require.NoError(t, view.Validate())
	assert.Equal(t, 1, view.Resolve(9))
	assert.Equal(t, -1, view.Resolve(10))
	assert.Equal(t, -1, view.Resolve(11))
	view.NumPixels = 8
	require.Error(t, view.Validate(), "pixels don't reach the last submap")
	view.NumPixels = 13
	require.Error(t, view.Validate(), "pixels beyond the last submap")
	view.NumPixels = 12

	view.Global2Local[0] = 2
	require.Error(t, view.Validate())
	view.Global2Local[0] = -1
	view.Data = make([]float64, 7)
	require.Error(t, view.Validate())

	batch := &Batch{Shape: BatchShape{1, 1, 1}, NumComponents: 3,
		Pixels: make([]int64, 1), Weights: make([]float64, 3), Data: make([]float64, 1), Real: make([]bool, 1)}
	view.Data = make([]float64, 8)
	require.Error(t, CheckCompatible(batch, view))
}

type fakeKernel struct{ config string }

func (k *fakeKernel) Name() string        { return "fake" }
func (k *fakeKernel) Description() string { return "fake:" + k.config }
func (k *fakeKernel) Finalize()           {}
func (k *fakeKernel) Scan(*Batch, *MapView, Op) ([]float64, error) {
	return nil, nil
}
func (k *fakeKernel) Bin(*Batch, *MapView, Op) ([]float64, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	Register("fake", func(config string) (Kernel, error) { return &fakeKernel{config: config}, nil })
	assert.Contains(t, List(), "fake")

	kernel, err := NewWithConfig("fake:with:colons")
	require.NoError(t, err)
	assert.Equal(t, "fake:with:colons", kernel.Description())

	_, err = NewWithConfig("unknown")
	require.Error(t, err)

	t.Setenv(ConfigEnvVar, "fake:env")
	kernel, err = New()
	require.NoError(t, err)
	assert.Equal(t, "fake:env", kernel.Description())
}
