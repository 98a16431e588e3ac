// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compiled implements the scan and bin kernels as GoMLX computation graphs, JIT-compiled
// by a GoMLX backend (the pure Go "go" backend, or XLA for CPU/GPU).
//
// One program is compiled per combination of mode and submap size, and the GoMLX executor
// caches one compilation per batch shape: a new shape triggers a one-time recompilation.
//
// The configuration string is passed to backends.NewWithConfig, e.g. "compiled:go" or
// "compiled:xla:cpu". An empty configuration uses backends.New(), which honors GOMLX_BACKEND.
package compiled

import (
	"fmt"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/skymap/kernels"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// KernelName to be used in SKYMAP_KERNEL to select this kernel.
const KernelName = "compiled"

func init() {
	kernels.Register(KernelName, func(config string) (kernels.Kernel, error) {
		return New(config)
	})
}

// execKey identifies one compiled program. Shapes are handled by the graph.Exec cache.
type execKey struct {
	bin        bool
	keepPrior  bool
	subtract   bool
	submapSize int
	numPixels  int64
}

// Kernel implements kernels.Kernel with GoMLX.
type Kernel struct {
	backend backends.Backend

	mu    sync.Mutex
	execs map[execKey]*graph.Exec
}

// Compile-time check that compiled.Kernel implements kernels.Kernel.
var _ kernels.Kernel = &Kernel{}

// New creates a compiled kernel on the GoMLX backend selected by config.
func New(config string) (*Kernel, error) {
	var backend backends.Backend
	var err error
	if config == "" {
		backend, err = backends.New()
	} else {
		backend, err = backends.NewWithConfig(config)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create GoMLX backend for configuration %q", config)
	}
	return NewWithBackend(backend), nil
}

// NewWithBackend creates a compiled kernel on the given backend. The kernel takes ownership of the backend.
func NewWithBackend(backend backends.Backend) *Kernel {
	return &Kernel{
		backend: backend,
		execs:   make(map[execKey]*graph.Exec),
	}
}

// Backend used to compile and execute the kernel programs.
func (k *Kernel) Backend() backends.Backend { return k.backend }

// Name implements kernels.Kernel.
func (k *Kernel) Name() string { return KernelName }

// Description implements kernels.Kernel.
func (k *Kernel) Description() string {
	return fmt.Sprintf("%s (GoMLX backend %s)", KernelName, k.backend.Description())
}

// Finalize implements kernels.Kernel: it releases the compiled programs and the backend.
func (k *Kernel) Finalize() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, e := range k.execs {
		e.Finalize()
	}
	k.execs = nil
	if k.backend != nil {
		k.backend.Finalize()
		k.backend = nil
	}
}

// getExec returns the executor for the given key, creating it if needed.
func (k *Kernel) getExec(key execKey) (*graph.Exec, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.execs == nil {
		return nil, errors.Errorf("%s kernel already finalized", KernelName)
	}
	if e, found := k.execs[key]; found {
		return e, nil
	}
	buildFn := scanGraph
	if key.bin {
		buildFn = binGraph
	}
	e, err := graph.NewExec(k.backend, func(pixels, weights, data, global2local, mapData, scale *graph.Node) *graph.Node {
		return buildFn(key, pixels, weights, data, global2local, mapData, scale)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create executor for %+v", key)
	}
	klog.V(2).Infof("%s kernel: new executor for %+v", KernelName, key)
	k.execs[key] = e
	return e, nil
}

// Scan implements kernels.Kernel.
func (k *Kernel) Scan(batch *kernels.Batch, view *kernels.MapView, op kernels.Op) ([]float64, error) {
	if err := kernels.CheckCompatible(batch, view); err != nil {
		return nil, err
	}
	if batch.Shape.IsEmpty() {
		return []float64{}, nil
	}
	keepPrior := op.KeepsPrior()
	if view.NumLocalSubmaps() == 0 {
		// Nothing is held locally: every sample is invalid and the update is 0.
		out := make([]float64, batch.Shape.Size())
		if keepPrior {
			copy(out, batch.Data)
		}
		return out, nil
	}
	key := execKey{keepPrior: keepPrior, subtract: op.Mode == kernels.ModeSubtract,
		submapSize: view.SubmapSize, numPixels: view.NumPixels}
	return k.run(key, batch.Pixels, batch, view, op.Scale)
}

// Bin implements kernels.Kernel.
func (k *Kernel) Bin(batch *kernels.Batch, view *kernels.MapView, op kernels.Op) ([]float64, error) {
	if err := kernels.CheckCompatible(batch, view); err != nil {
		return nil, err
	}
	keepPrior := op.KeepsPrior()
	if batch.Shape.IsEmpty() || view.NumLocalSubmaps() == 0 {
		result := make([]float64, len(view.Data))
		if keepPrior {
			copy(result, view.Data)
		}
		return result, nil
	}

	// Padding positions are masked out by marking their pixels invalid.
	pixels := make([]int64, len(batch.Pixels))
	for ii, pixel := range batch.Pixels {
		if batch.Real[ii] {
			pixels[ii] = pixel
		} else {
			pixels[ii] = -1
		}
	}
	key := execKey{bin: true, keepPrior: keepPrior, subtract: op.Mode == kernels.ModeSubtract,
		submapSize: view.SubmapSize, numPixels: view.NumPixels}
	return k.run(key, pixels, batch, view, op.Scale)
}

// run executes the program for key, converting panics raised while building or executing the graph into errors.
func (k *Kernel) run(key execKey, pixels []int64, batch *kernels.Batch, view *kernels.MapView, scale float64) (
	result []float64, err error) {
	e, err := k.getExec(key)
	if err != nil {
		return nil, err
	}
	size := batch.Shape.Size()
	nnz := batch.NumComponents
	inputs := []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(pixels, size),
		tensors.FromFlatDataAndDimensions(batch.Weights, size, nnz),
		tensors.FromFlatDataAndDimensions(batch.Data, size),
		tensors.FromFlatDataAndDimensions(view.Global2Local, len(view.Global2Local)),
		tensors.FromFlatDataAndDimensions(view.Data, len(view.Data)/nnz, nnz),
		tensors.FromScalar(scale),
	}
	defer finalizeAll(inputs)

	err = exceptions.TryCatch[error](func() {
		outputs, execErr := e.Exec(inputs[0], inputs[1], inputs[2], inputs[3], inputs[4], inputs[5])
		if execErr != nil {
			panic(execErr)
		}
		defer finalizeAll(outputs)
		result = tensors.MustCopyFlatData[float64](outputs[0])
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "%s kernel failed executing %+v for batch %s", KernelName, key, batch.Shape)
	}
	return result, nil
}

func finalizeAll(ts []*tensors.Tensor) {
	for _, t := range ts {
		if err := t.FinalizeAll(); err != nil {
			klog.Warningf("%s kernel: failed to finalize tensor: %+v", KernelName, err)
		}
	}
}
