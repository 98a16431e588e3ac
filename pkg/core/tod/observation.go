// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tod

import (
	"fmt"

	"github.com/gomlx/skymap/pkg/core/intervals"
	"github.com/google/uuid"
)

// Observation is a contiguous stretch of data of a set of detectors.
type Observation struct {
	Name string

	// UID is derived from the Name, so the same observation gets the same UID on every worker.
	UID uuid.UUID

	Detectors *Detectors

	// Flags per sample shared by all detectors (may be nil). See intervals.FromFlags.
	Flags []uint8

	// Intervals of samples to process.
	Intervals intervals.List
}

// NewObservation creates an observation whose intervals cover all samples.
func NewObservation(name string, detectors *Detectors) *Observation {
	return &Observation{
		Name:      name,
		UID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		Detectors: detectors,
		Intervals: intervals.Full(detectors.NumSamples()),
	}
}

// ApplyFlags restricts the observation intervals to the samples whose Flags have none of the bits in mask set.
func (o *Observation) ApplyFlags(mask uint8) {
	if o.Flags == nil {
		return
	}
	o.Intervals = o.Intervals.Intersect(intervals.FromFlags(o.Flags, mask))
}

// MemoryUse returns the bytes used by the detector data and flags of the observation.
func (o *Observation) MemoryUse() uintptr {
	var total uintptr
	if o.Detectors != nil {
		total += o.Detectors.Memory()
	}
	total += uintptr(len(o.Flags))
	return total
}

// String implements fmt.Stringer.
func (o *Observation) String() string {
	return fmt.Sprintf("Observation(%q, %d detectors, %d samples, %d intervals)",
		o.Name, o.Detectors.NumDetectors(), o.Detectors.NumSamples(), len(o.Intervals))
}

// MemoryUse returns the total bytes used by the given observations.
func MemoryUse(observations ...*Observation) uintptr {
	var total uintptr
	for _, obs := range observations {
		total += obs.MemoryUse()
	}
	return total
}
