// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pixels

import (
	"fmt"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// LocalMap holds the values of the locally owned submaps of a Distribution.
//
// Its storage is a flat float64 buffer with layout [NumLocalSubmaps, SubmapSize, NumComponents].
// Access to the data goes through ConstFlatData and MutableFlatData, which take a read or a write
// lock respectively: a reader never observes a partially applied update.
type LocalMap struct {
	dist          *Distribution
	numComponents int

	mu   sync.RWMutex
	data []float64
}

// NewLocalMap creates a zero-initialized map for the locally owned submaps of dist, with numComponents
// values per pixel (typically 1 for intensity only, or 3 for I, Q, U).
func NewLocalMap(dist *Distribution, numComponents int) (*LocalMap, error) {
	if dist == nil {
		return nil, errors.New("LocalMap requires a pixel distribution")
	}
	if numComponents <= 0 {
		return nil, errors.Errorf("number of components must be > 0, got %d", numComponents)
	}
	return &LocalMap{
		dist:          dist,
		numComponents: numComponents,
		data:          make([]float64, dist.NumLocalPixels()*numComponents),
	}, nil
}

// Distribution of the pixels of the map.
func (m *LocalMap) Distribution() *Distribution { return m.dist }

// NumComponents per pixel.
func (m *LocalMap) NumComponents() int { return m.numComponents }

// Shape of the map buffer: [NumLocalSubmaps, SubmapSize, NumComponents].
func (m *LocalMap) Shape() shapes.Shape {
	return shapes.Make(dtypes.Float64, m.dist.NumLocalSubmaps(), m.dist.SubmapSize(), m.numComponents)
}

// Memory used by the map buffer, in bytes.
func (m *LocalMap) Memory() uintptr {
	return m.Shape().Memory()
}

// ConstFlatData calls accessFn with the flat map buffer, holding a read lock.
//
// accessFn must not modify the data, nor keep a reference to it after it returns.
func (m *LocalMap) ConstFlatData(accessFn func(flat []float64)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accessFn(m.data)
}

// MutableFlatData calls accessFn with the flat map buffer, holding the write lock.
//
// accessFn must not keep a reference to the data after it returns.
func (m *LocalMap) MutableFlatData(accessFn func(flat []float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accessFn(m.data)
}

// Pixel returns a copy of the component values of the given global pixel, and whether the pixel is held locally.
func (m *LocalMap) Pixel(pixel int64) ([]float64, bool) {
	idx := m.dist.LocalIndex(pixel)
	if idx < 0 {
		return nil, false
	}
	values := make([]float64, m.numComponents)
	m.ConstFlatData(func(flat []float64) {
		copy(values, flat[int(idx)*m.numComponents:])
	})
	return values, true
}

// SetPixel sets the component values of the given global pixel.
// It returns an error if the pixel is not held locally, or if the number of values doesn't match NumComponents.
func (m *LocalMap) SetPixel(pixel int64, values ...float64) error {
	if len(values) != m.numComponents {
		return errors.Errorf("map has %d components per pixel, got %d values for pixel %d",
			m.numComponents, len(values), pixel)
	}
	idx := m.dist.LocalIndex(pixel)
	if idx < 0 {
		return errors.Errorf("pixel %d is not held by the local map %s", pixel, m.dist)
	}
	m.MutableFlatData(func(flat []float64) {
		copy(flat[int(idx)*m.numComponents:], values)
	})
	return nil
}

// Reset sets all values of the map to 0.
func (m *LocalMap) Reset() {
	m.MutableFlatData(func(flat []float64) {
		clear(flat)
	})
}

// String implements fmt.Stringer.
func (m *LocalMap) String() string {
	return fmt.Sprintf("LocalMap(%s, %d components)", m.Shape(), m.numComponents)
}
