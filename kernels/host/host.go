// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package host implements the scan and bin kernels in pure Go, parallelized over detectors.
//
// It is the reference kernel, always available, and the fallback of the compiled kernel.
package host

import (
	"fmt"
	"strconv"

	"github.com/gomlx/skymap/internal/workerspool"
	"github.com/gomlx/skymap/kernels"
	"github.com/pkg/errors"
)

// KernelName to be used in SKYMAP_KERNEL to select this kernel.
const KernelName = "host"

func init() {
	kernels.Register(KernelName, func(config string) (kernels.Kernel, error) {
		return New(config)
	})
}

// Kernel implements kernels.Kernel on the host CPU.
type Kernel struct {
	pool *workerspool.Pool
}

// Compile-time check that host.Kernel implements kernels.Kernel.
var _ kernels.Kernel = &Kernel{}

// New constructs a host kernel. The configuration is the maximum parallelism: an integer,
// where 0 disables parallelism and -1 means unlimited. It defaults to runtime.NumCPU().
func New(config string) (*Kernel, error) {
	if config == "" {
		return &Kernel{pool: workerspool.New()}, nil
	}
	parallelism, err := strconv.Atoi(config)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %q kernel configuration %q, it must be the parallelism (an integer)",
			KernelName, config)
	}
	return &Kernel{pool: workerspool.NewWithParallelism(parallelism)}, nil
}

// Name implements kernels.Kernel.
func (k *Kernel) Name() string { return KernelName }

// Description implements kernels.Kernel.
func (k *Kernel) Description() string {
	return fmt.Sprintf("%s (pure Go, parallelism=%d)", KernelName, k.pool.MaxParallelism())
}

// Finalize implements kernels.Kernel. The host kernel holds no resources.
func (k *Kernel) Finalize() {}

// Scan implements kernels.Kernel.
func (k *Kernel) Scan(batch *kernels.Batch, view *kernels.MapView, op kernels.Op) ([]float64, error) {
	if err := kernels.CheckCompatible(batch, view); err != nil {
		return nil, err
	}
	out := make([]float64, batch.Shape.Size())
	if batch.Shape.IsEmpty() {
		return out, nil
	}
	_, coef := op.Coefficients()
	keepPrior := op.KeepsPrior()
	nnz := batch.NumComponents
	chunk := batch.Shape.NumIntervals * batch.Shape.MaxLength
	k.pool.ForEach(batch.Shape.NumDetectors, func(detector int) {
		start, end := detector*chunk, (detector+1)*chunk
		update := make([]float64, chunk)
		for ii := start; ii < end; ii++ {
			idx := view.Resolve(batch.Pixels[ii])
			if idx < 0 {
				continue
			}
			values := view.Data[idx*nnz : (idx+1)*nnz]
			var sum float64
			for c, weight := range batch.Weights[ii*nnz : (ii+1)*nnz] {
				sum += values[c] * weight
			}
			update[ii-start] = sum
		}
		var prior []float64
		if keepPrior {
			prior = batch.Data[start:end]
		}
		combine(out[start:end], prior, update, coef)
	})
	return out, nil
}

// Bin implements kernels.Kernel.
//
// Per-sample contributions are computed in parallel over detectors, and accumulated into the map
// sequentially, in batch order.
func (k *Kernel) Bin(batch *kernels.Batch, view *kernels.MapView, op kernels.Op) ([]float64, error) {
	if err := kernels.CheckCompatible(batch, view); err != nil {
		return nil, err
	}
	_, coef := op.Coefficients()
	result := make([]float64, len(view.Data))
	if op.KeepsPrior() {
		copy(result, view.Data)
	}
	if batch.Shape.IsEmpty() {
		return result, nil
	}

	size := batch.Shape.Size()
	chunk := batch.Shape.NumIntervals * batch.Shape.MaxLength
	indices := make([]int, size)
	factors := make([]float64, size)
	k.pool.ForEach(batch.Shape.NumDetectors, func(detector int) {
		start, end := detector*chunk, (detector+1)*chunk
		combine(factors[start:end], nil, batch.Data[start:end], coef)
		for ii := start; ii < end; ii++ {
			indices[ii] = -1
			if batch.Real[ii] {
				indices[ii] = view.Resolve(batch.Pixels[ii])
			}
		}
	})

	nnz := batch.NumComponents
	for ii, idx := range indices {
		if idx < 0 {
			continue
		}
		target := result[idx*nnz : (idx+1)*nnz]
		for c, weight := range batch.Weights[ii*nnz : (ii+1)*nnz] {
			target[c] += weight * factors[ii]
		}
	}
	return result, nil
}
