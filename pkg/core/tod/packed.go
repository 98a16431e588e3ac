// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tod holds time-ordered detector data: packed per-detector arrays of pixel indices,
// pointing weights and timestream samples, and the observations that group them.
package tod

import (
	"fmt"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Element types supported by Packed.
type Element interface {
	int64 | float64
}

// Packed is a flat array of rows of samples, each sample with Width values: the layout is
// [Rows, Samples, Width].
//
// Detectors address rows through row indices, so a packed array may hold more rows than detectors,
// and several detectors may share a row.
//
// Access to the data goes through ConstFlatData and MutableFlatData, which take a read or a write
// lock respectively.
type Packed[T Element] struct {
	rows, samples, width int

	mu   sync.RWMutex
	data []T
}

// NewPacked creates a zero-initialized packed array.
func NewPacked[T Element](rows, samples, width int) (*Packed[T], error) {
	if rows < 0 || samples < 0 || width <= 0 {
		return nil, errors.Errorf("invalid packed array dimensions rows=%d, samples=%d, width=%d", rows, samples, width)
	}
	return &Packed[T]{rows: rows, samples: samples, width: width, data: make([]T, rows*samples*width)}, nil
}

// FromFlatData creates a packed array that takes ownership of data, with layout [rows, samples, width].
func FromFlatData[T Element](data []T, rows, samples, width int) (*Packed[T], error) {
	p, err := NewPacked[T](rows, samples, width)
	if err != nil {
		return nil, err
	}
	if len(data) != rows*samples*width {
		return nil, errors.Errorf("packed array of rows=%d, samples=%d, width=%d requires %d values, got %d",
			rows, samples, width, rows*samples*width, len(data))
	}
	p.data = data
	return p, nil
}

// Rows in the packed array.
func (p *Packed[T]) Rows() int { return p.rows }

// Samples per row.
func (p *Packed[T]) Samples() int { return p.samples }

// Width is the number of values per sample.
func (p *Packed[T]) Width() int { return p.width }

// DType of the elements.
func (p *Packed[T]) DType() dtypes.DType {
	return dtypes.FromGenericsType[T]()
}

// Shape of the packed array.
func (p *Packed[T]) Shape() shapes.Shape {
	return shapes.Make(p.DType(), p.rows, p.samples, p.width)
}

// Memory used by the packed array, in bytes.
func (p *Packed[T]) Memory() uintptr {
	return p.Shape().Memory()
}

// RowOffset returns the offset in the flat data of the first value of the given row.
func (p *Packed[T]) RowOffset(row int) int {
	return row * p.samples * p.width
}

// ConstFlatData calls accessFn with the flat data, holding a read lock.
//
// accessFn must not modify the data, nor keep a reference to it after it returns.
func (p *Packed[T]) ConstFlatData(accessFn func(flat []T)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	accessFn(p.data)
}

// MutableFlatData calls accessFn with the flat data, holding the write lock.
//
// accessFn must not keep a reference to the data after it returns.
func (p *Packed[T]) MutableFlatData(accessFn func(flat []T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	accessFn(p.data)
}

// Row returns a copy of the values of the given row.
func (p *Packed[T]) Row(row int) []T {
	values := make([]T, p.samples*p.width)
	p.ConstFlatData(func(flat []T) {
		copy(values, flat[p.RowOffset(row):])
	})
	return values
}

// SetRow copies values into the given row. It returns an error if the sizes don't match.
func (p *Packed[T]) SetRow(row int, values []T) error {
	if row < 0 || row >= p.rows {
		return errors.Errorf("row %d out of range [0, %d)", row, p.rows)
	}
	if len(values) != p.samples*p.width {
		return errors.Errorf("row has %d values (%d samples x width %d), got %d",
			p.samples*p.width, p.samples, p.width, len(values))
	}
	p.MutableFlatData(func(flat []T) {
		copy(flat[p.RowOffset(row):], values)
	})
	return nil
}

// String implements fmt.Stringer.
func (p *Packed[T]) String() string {
	return fmt.Sprintf("Packed(%s)", p.Shape())
}
