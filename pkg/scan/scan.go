// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scan projects a distributed sky map into detector timestreams (ScanMap) and accumulates
// timestreams into the map (BinMap).
//
// Each invocation extracts a padded batch from the packed detector arrays, runs the selected
// kernel (see package kernels) and applies its results in one step:
//
//   - ScanMap holds a read lock on the map and the write lock on the timestream for the whole
//     invocation, and writes back only the real (non-padding) positions.
//   - BinMap holds the write lock on the map and replaces its contents with the kernel result.
//
// Configuration errors are returned before anything is processed, samples that don't resolve to a
// locally held pixel silently contribute zero, and kernel failures fail the invocation without
// modifying anything, unless Config.Fallback is set.
package scan

import (
	"sync"
	"time"

	"github.com/gomlx/skymap/kernels"
	"github.com/gomlx/skymap/kernels/host"
	"github.com/gomlx/skymap/pkg/core/intervals"
	"github.com/gomlx/skymap/pkg/core/pixels"
	"github.com/gomlx/skymap/pkg/core/tod"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	opScan = "scan"
	opBin  = "bin"
)

// Scanner runs scan and bin operations with a fixed configuration and kernel.
//
// It is safe for concurrent use: concurrent invocations on the same map or timestream are
// serialized by their locks.
type Scanner struct {
	config     Config
	kernel     kernels.Kernel
	ownsKernel bool
}

// New creates a Scanner, with the kernel selected by config.Kernel.
//
// Call Finalize to release the kernel.
func New(config Config) (*Scanner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var kernel kernels.Kernel
	var err error
	if config.Kernel == "" {
		kernel, err = kernels.New()
	} else {
		kernel, err = kernels.NewWithConfig(config.Kernel)
	}
	if err != nil {
		return nil, err
	}
	return &Scanner{config: config, kernel: kernel, ownsKernel: true}, nil
}

// NewWithKernel creates a Scanner that uses the given kernel. config.Kernel is ignored.
//
// The kernel is not owned by the Scanner: Finalize won't release it.
func NewWithKernel(config Config, kernel kernels.Kernel) (*Scanner, error) {
	if kernel == nil {
		return nil, errors.New("scanner requires a kernel")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{config: config, kernel: kernel}, nil
}

// WithConfig returns a Scanner with a different configuration sharing the same kernel.
// The new Scanner doesn't own the kernel.
func (s *Scanner) WithConfig(config Config) (*Scanner, error) {
	return NewWithKernel(config, s.kernel)
}

// Config of the Scanner.
func (s *Scanner) Config() Config { return s.config }

// Kernel used by the Scanner.
func (s *Scanner) Kernel() kernels.Kernel { return s.kernel }

// Finalize releases the kernel, if it was created by the Scanner.
func (s *Scanner) Finalize() {
	if s.ownsKernel && s.kernel != nil {
		s.kernel.Finalize()
	}
	s.kernel = nil
}

// checkInputs returns the configuration errors for an invocation.
func (s *Scanner) checkInputs(m *pixels.LocalMap, det *tod.Detectors, ivals intervals.List) error {
	if s.kernel == nil {
		return errors.New("scanner already finalized")
	}
	if m == nil || det == nil {
		return errors.New("a local map and detectors are required")
	}
	if m.NumComponents() != s.config.NumComponents {
		return errors.Errorf("map has %d components, but the configuration has %d",
			m.NumComponents(), s.config.NumComponents)
	}
	if err := det.Validate(s.config.NumComponents); err != nil {
		return err
	}
	return ivals.Validate(det.NumSamples())
}

// mapView of the map data, which must be locked by the caller.
func mapView(m *pixels.LocalMap, data []float64) *kernels.MapView {
	dist := m.Distribution()
	return &kernels.MapView{
		SubmapSize:    dist.SubmapSize(),
		NumComponents: m.NumComponents(),
		NumPixels:     dist.NumPixels(),
		Global2Local:  dist.Global2Local(),
		Data:          data,
	}
}

// ScanMap samples the map at the pixels of the given detectors and intervals, and combines the result
// with their timestream, in place:
//
//	data = combine(data, DataScale * sum_c(map[pixel, c] * weight[c]))
//
// Samples outside the intervals, and padding, are left untouched. Samples whose pixel is not held by
// the map get a zero update.
func (s *Scanner) ScanMap(m *pixels.LocalMap, det *tod.Detectors, ivals intervals.List) error {
	if err := s.checkInputs(m, det, ivals); err != nil {
		failuresTotal.WithLabelValues(opScan).Inc()
		return errors.WithMessage(err, "ScanMap")
	}
	if len(ivals) == 0 || det.NumDetectors() == 0 {
		klog.V(2).Infof("ScanMap: nothing to do (%d detectors, %d intervals)", det.NumDetectors(), len(ivals))
		return nil
	}

	op := s.config.Op()
	var err error
	m.ConstFlatData(func(mapData []float64) {
		view := mapView(m, mapData)
		det.Data.MutableFlatData(func(data []float64) {
			batch := extractWithData(det, ivals, s.config.NumComponents, data)
			recordBatch(opScan, batch, m.Distribution())
			var values []float64
			values, err = s.transform(opScan, func(kernel kernels.Kernel) ([]float64, error) {
				values, err := kernel.Scan(batch, view, op)
				if err == nil && len(values) != batch.Shape.Size() {
					err = errors.Errorf("kernel %q returned %d values for a batch of %d positions",
						kernel.Name(), len(values), batch.Shape.Size())
				}
				return values, err
			})
			if err != nil {
				return
			}
			scatterWithData(batch, values, det, ivals, data)
			klog.V(1).Infof("ScanMap: %s with %s, batch %s", op, s.kernel.Name(), batch.Shape)
		})
	})
	if err != nil {
		failuresTotal.WithLabelValues(opScan).Inc()
		return errors.WithMessage(err, "ScanMap")
	}
	return nil
}

// BinMap accumulates the timestream of the given detectors and intervals into the map, in place:
//
//	map[pixel, c] = combine(map[pixel, c], DataScale * weight[c] * data)
//
// Padding and samples whose pixel is not held by the map don't contribute. With ModeOverwrite or
// ZeroFirst the map is cleared before accumulating.
func (s *Scanner) BinMap(m *pixels.LocalMap, det *tod.Detectors, ivals intervals.List) error {
	if err := s.checkInputs(m, det, ivals); err != nil {
		failuresTotal.WithLabelValues(opBin).Inc()
		return errors.WithMessage(err, "BinMap")
	}
	if len(ivals) == 0 || det.NumDetectors() == 0 {
		klog.V(2).Infof("BinMap: nothing to do (%d detectors, %d intervals)", det.NumDetectors(), len(ivals))
		return nil
	}

	op := s.config.Op()
	var err error
	m.MutableFlatData(func(mapData []float64) {
		view := mapView(m, mapData)
		batch := Extract(det, ivals, s.config.NumComponents)
		recordBatch(opBin, batch, m.Distribution())
		var values []float64
		values, err = s.transform(opBin, func(kernel kernels.Kernel) ([]float64, error) {
			values, err := kernel.Bin(batch, view, op)
			if err == nil && len(values) != len(mapData) {
				err = errors.Errorf("kernel %q returned %d values for a map of %d values",
					kernel.Name(), len(values), len(mapData))
			}
			return values, err
		})
		if err != nil {
			return
		}
		copy(mapData, values)
		klog.V(1).Infof("BinMap: %s with %s, batch %s", op, s.kernel.Name(), batch.Shape)
	})
	if err != nil {
		failuresTotal.WithLabelValues(opBin).Inc()
		return errors.WithMessage(err, "BinMap")
	}
	return nil
}

// ScanObservation is ScanMap over the detectors and intervals of the observation.
func (s *Scanner) ScanObservation(m *pixels.LocalMap, obs *tod.Observation) error {
	return errors.WithMessagef(s.ScanMap(m, obs.Detectors, obs.Intervals), "observation %q", obs.Name)
}

// BinObservation is BinMap over the detectors and intervals of the observation.
func (s *Scanner) BinObservation(m *pixels.LocalMap, obs *tod.Observation) error {
	return errors.WithMessagef(s.BinMap(m, obs.Detectors, obs.Intervals), "observation %q", obs.Name)
}

var (
	fallbackOnce   sync.Once
	fallbackKernel kernels.Kernel
	fallbackErr    error
)

// hostFallback returns the shared host kernel used as fallback.
func hostFallback() (kernels.Kernel, error) {
	fallbackOnce.Do(func() {
		fallbackKernel, fallbackErr = host.New("")
	})
	return fallbackKernel, fallbackErr
}

// transform runs fn on the Scanner kernel, and on the host kernel if it fails and fallback is configured.
func (s *Scanner) transform(opName string, fn func(kernels.Kernel) ([]float64, error)) ([]float64, error) {
	kernelName := s.kernel.Name()
	start := time.Now()
	values, err := fn(s.kernel)
	kernelSeconds.WithLabelValues(opName, kernelName).Observe(time.Since(start).Seconds())
	if err == nil {
		invocationsTotal.WithLabelValues(opName, kernelName).Inc()
		return values, nil
	}
	if !s.config.Fallback || kernelName == host.KernelName {
		return nil, err
	}

	fallback, initErr := hostFallback()
	if initErr != nil {
		return nil, errors.WithMessagef(err, "and fallback kernel failed to initialize (%v)", initErr)
	}
	klog.Warningf("%s: kernel %q failed, falling back to %q: %+v", opName, kernelName, host.KernelName, err)
	fallbacksTotal.WithLabelValues(opName, kernelName).Inc()
	values, err = fn(fallback)
	if err != nil {
		return nil, errors.WithMessagef(err, "fallback kernel %q also failed", host.KernelName)
	}
	invocationsTotal.WithLabelValues(opName, host.KernelName).Inc()
	return values, nil
}

// recordBatch updates the sample counters with the contents of the batch.
func recordBatch(opName string, batch *kernels.Batch, dist *pixels.Distribution) {
	var numReal, numInvalid int
	for ii, isReal := range batch.Real {
		if !isReal {
			continue
		}
		numReal++
		if !dist.OwnsPixel(batch.Pixels[ii]) {
			numInvalid++
		}
	}
	samplesTotal.WithLabelValues(opName).Add(float64(numReal))
	invalidSamplesTotal.WithLabelValues(opName).Add(float64(numInvalid))
	paddingTotal.WithLabelValues(opName).Add(float64(len(batch.Real) - numReal))
}

// ScanMap runs Scanner.ScanMap with the given kernel and configuration.
func ScanMap(kernel kernels.Kernel, m *pixels.LocalMap, det *tod.Detectors, ivals intervals.List, config Config) error {
	s, err := NewWithKernel(config, kernel)
	if err != nil {
		return errors.WithMessage(err, "ScanMap")
	}
	return s.ScanMap(m, det, ivals)
}

// BinMap runs Scanner.BinMap with the given kernel and configuration.
func BinMap(kernel kernels.Kernel, m *pixels.LocalMap, det *tod.Detectors, ivals intervals.List, config Config) error {
	s, err := NewWithKernel(config, kernel)
	if err != nil {
		return errors.WithMessage(err, "BinMap")
	}
	return s.BinMap(m, det, ivals)
}
