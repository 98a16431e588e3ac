// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package intervals

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval(t *testing.T) {
	iv := Interval{First: 3, Last: 7}
	assert.Equal(t, 5, iv.Len())
	assert.True(t, iv.Contains(3))
	assert.True(t, iv.Contains(7))
	assert.False(t, iv.Contains(8))
	assert.Equal(t, 1, Interval{First: 4, Last: 4}.Len())
	assert.Equal(t, 0, Interval{First: 4, Last: 3}.Len())
	assert.Equal(t, "[3, 7]", iv.String())
}

func TestList_Validate(t *testing.T) {
	require.NoError(t, List(nil).Validate(0))
	require.NoError(t, List{{0, 2}, {5, 9}}.Validate(10))
	require.NoError(t, List{{0, 2}, {5, 9}}.Validate(-1))

	// Out of the timestream.
	require.Error(t, List{{0, 2}, {5, 10}}.Validate(10))
	// Malformed.
	require.Error(t, List{{3, 2}}.Validate(10))
	require.Error(t, List{{-1, 2}}.Validate(10))
	// Overlapping and out-of-order.
	require.Error(t, List{{0, 5}, {5, 9}}.Validate(10))
	require.Error(t, List{{5, 9}, {0, 2}}.Validate(10))
}

func TestList_MaxLengthAndNumSamples(t *testing.T) {
	var empty List
	assert.Equal(t, 0, empty.MaxLength())
	assert.Equal(t, 0, empty.NumSamples())
	_, _, ok := empty.Span()
	assert.False(t, ok)

	l := List{{0, 2}, {5, 9}, {12, 12}}
	assert.Equal(t, 5, l.MaxLength())
	assert.Equal(t, 9, l.NumSamples())
	first, last, ok := l.Span()
	require.True(t, ok)
	assert.Equal(t, 0, first)
	assert.Equal(t, 12, last)

	// MaxLength follows the contents.
	l = append(l, Interval{First: 20, Last: 39})
	assert.Equal(t, 20, l.MaxLength())
}

func TestFromFlags(t *testing.T) {
	flags := []uint8{0, 0, 1, 1, 0, 2, 0, 0}
	got := FromFlags(flags, 1)
	want := List{{0, 1}, {4, 7}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromFlags(mask=1) mismatch (-want +got):\n%s", diff)
	}

	got = FromFlags(flags, 3)
	want = List{{0, 1}, {4, 4}, {6, 7}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromFlags(mask=3) mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, Full(len(flags)), FromFlags(flags, 0))
	assert.Empty(t, FromFlags([]uint8{1, 1}, 1))
	assert.Empty(t, FromFlags(nil, 1))
	require.NoError(t, FromFlags(flags, 3).Validate(len(flags)))
}

func TestList_Intersect(t *testing.T) {
	a := List{{0, 9}, {20, 29}}
	b := List{{5, 24}, {27, 40}}
	want := List{{5, 9}, {20, 24}, {27, 29}}
	if diff := cmp.Diff(want, a.Intersect(b)); diff != "" {
		t.Errorf("Intersect mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, b.Intersect(a)); diff != "" {
		t.Errorf("Intersect is not symmetric (-want +got):\n%s", diff)
	}
	assert.Empty(t, a.Intersect(nil))
	assert.Empty(t, List{{0, 3}}.Intersect(List{{4, 8}}))
	assert.Equal(t, "{[5, 9], [20, 24], [27, 29]}", a.Intersect(b).String())
}
