// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Mode defines how the computed update is combined with the prior values of the target
// (the timestream when scanning, the map when binning).
type Mode int

const (
	// ModeOverwrite replaces the prior value with the update.
	ModeOverwrite Mode = iota

	// ModeAccumulate adds the update to the prior value.
	ModeAccumulate

	// ModeSubtract subtracts the update from the prior value.
	ModeSubtract
)

var modeNames = []string{"overwrite", "accumulate", "subtract"}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// IsValid returns whether m is one of the defined modes.
func (m Mode) IsValid() bool {
	return m >= ModeOverwrite && m <= ModeSubtract
}

// ParseMode converts a mode name (case-insensitive) to a Mode.
func ParseMode(name string) (Mode, error) {
	for ii, modeName := range modeNames {
		if strings.EqualFold(name, modeName) {
			return Mode(ii), nil
		}
	}
	return 0, errors.Errorf("unknown mode %q, valid values are %q", name, modeNames)
}

// Op describes how a kernel combines its update with the prior values.
type Op struct {
	Mode Mode

	// ZeroFirst discards the prior value before combining. It is independent of Mode:
	// with ModeSubtract the result is then -update. ModeOverwrite always discards the prior value.
	ZeroFirst bool

	// Scale multiplies the update.
	Scale float64
}

// Coefficients returns the factors of the combination:
//
//	result = keep * prior + coef * update
//
// where keep is either 0 or 1. When keep is 0 the prior value must not be read at all, so that
// non-finite prior values are also discarded.
func (op Op) Coefficients() (keep, coef float64) {
	keep, coef = 1, op.Scale
	if op.ZeroFirst || op.Mode == ModeOverwrite {
		keep = 0
	}
	if op.Mode == ModeSubtract {
		coef = -coef
	}
	return
}

// KeepsPrior returns whether the combination reads the prior value.
func (op Op) KeepsPrior() bool {
	keep, _ := op.Coefficients()
	return keep != 0
}

// String implements fmt.Stringer.
func (op Op) String() string {
	return fmt.Sprintf("Op(%s, zeroFirst=%v, scale=%g)", op.Mode, op.ZeroFirst, op.Scale)
}
