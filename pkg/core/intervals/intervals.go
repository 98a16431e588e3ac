// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package intervals defines spans of samples of a timestream, with inclusive bounds.
//
// A List is an ordered, non-overlapping collection of such spans. It is usually derived from
// per-sample flags (see FromFlags), and it is used to select which samples of an observation
// take part in scanning and binning.
package intervals

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Interval is a span of samples [First, Last], both ends inclusive.
type Interval struct {
	First, Last int
}

// Len returns the number of samples in the interval.
func (iv Interval) Len() int {
	if iv.Last < iv.First {
		return 0
	}
	return iv.Last - iv.First + 1
}

// Contains returns whether the sample is within the interval.
func (iv Interval) Contains(sample int) bool {
	return sample >= iv.First && sample <= iv.Last
}

// String implements fmt.Stringer.
func (iv Interval) String() string {
	return fmt.Sprintf("[%d, %d]", iv.First, iv.Last)
}

// List of intervals, ordered and non-overlapping. It may be empty.
//
// See Validate for the conditions a well-formed list must satisfy.
type List []Interval

// Full returns a list with one interval spanning all numSamples samples, or an empty list if numSamples is 0.
func Full(numSamples int) List {
	if numSamples <= 0 {
		return nil
	}
	return List{{First: 0, Last: numSamples - 1}}
}

// Validate checks that every interval has First <= Last, that intervals are strictly increasing and
// non-overlapping, and, if numSamples >= 0, that they are within [0, numSamples).
func (l List) Validate(numSamples int) error {
	previousLast := -1
	for ii, iv := range l {
		if iv.First < 0 || iv.Last < iv.First {
			return errors.Errorf("interval #%d %s is malformed: it must have 0 <= First <= Last", ii, iv)
		}
		if iv.First <= previousLast {
			return errors.Errorf("interval #%d %s overlaps or precedes the previous interval, which ends at %d",
				ii, iv, previousLast)
		}
		if numSamples >= 0 && iv.Last >= numSamples {
			return errors.Errorf("interval #%d %s goes beyond the timestream, which has %d samples",
				ii, iv, numSamples)
		}
		previousLast = iv.Last
	}
	return nil
}

// MaxLength returns the length of the longest interval, or 0 for an empty list.
//
// It is computed from the current contents on every call.
func (l List) MaxLength() int {
	maxLen := 0
	for _, iv := range l {
		maxLen = max(maxLen, iv.Len())
	}
	return maxLen
}

// NumSamples returns the total number of samples covered by the intervals.
func (l List) NumSamples() int {
	total := 0
	for _, iv := range l {
		total += iv.Len()
	}
	return total
}

// Span returns the first and last sample covered by the list. ok is false for an empty list.
func (l List) Span() (first, last int, ok bool) {
	if len(l) == 0 {
		return 0, 0, false
	}
	return l[0].First, l[len(l)-1].Last, true
}

// Intersect returns the samples covered by both lists. Both lists must be valid.
func (l List) Intersect(other List) List {
	var result List
	ii, jj := 0, 0
	for ii < len(l) && jj < len(other) {
		a, b := l[ii], other[jj]
		first, last := max(a.First, b.First), min(a.Last, b.Last)
		if first <= last {
			result = append(result, Interval{First: first, Last: last})
		}
		if a.Last < b.Last {
			ii++
		} else {
			jj++
		}
	}
	return result
}

// FromFlags returns the spans of samples whose flags have none of the bits in mask set,
// that is, the samples for which flags[i] & mask == 0.
//
// A mask of 0 selects every sample.
func FromFlags(flags []uint8, mask uint8) List {
	var result List
	first := -1
	for ii, flag := range flags {
		good := flag&mask == 0
		if good && first < 0 {
			first = ii
		} else if !good && first >= 0 {
			result = append(result, Interval{First: first, Last: ii - 1})
			first = -1
		}
	}
	if first >= 0 {
		result = append(result, Interval{First: first, Last: len(flags) - 1})
	}
	return result
}

// String implements fmt.Stringer.
func (l List) String() string {
	parts := make([]string, len(l))
	for ii, iv := range l {
		parts[ii] = iv.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
