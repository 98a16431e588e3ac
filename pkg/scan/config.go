// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scan

import (
	"fmt"
	"math"

	"github.com/gomlx/skymap/kernels"
	"github.com/pkg/errors"
)

// Config of a scan or bin operation.
type Config struct {
	// NumComponents per map pixel, and width of the pointing weights.
	NumComponents int

	// DataScale multiplies every update.
	DataScale float64

	// Mode of combination of the update with the prior values.
	Mode kernels.Mode

	// ZeroFirst discards the prior values before combining, independently of Mode.
	ZeroFirst bool

	// Kernel configuration, as in kernels.NewWithConfig (e.g. "host", "compiled:go").
	// If empty, kernels.New() selects the default kernel.
	Kernel string

	// Fallback to the host kernel if the selected kernel fails. If false, a kernel failure fails the operation.
	Fallback bool
}

// DefaultConfig returns a configuration that accumulates intensity-only (1 component) updates with scale 1.
func DefaultConfig() Config {
	return Config{NumComponents: 1, DataScale: 1, Mode: kernels.ModeAccumulate}
}

// ConfigFromFlags returns the default configuration with the combination given by the two flags:
// shouldZero discards the prior values, and shouldSubtract subtracts the update instead of adding it.
// With both set, the result is the negated update.
func ConfigFromFlags(shouldZero, shouldSubtract bool) Config {
	c := DefaultConfig()
	c.ZeroFirst = shouldZero
	if shouldSubtract {
		c.Mode = kernels.ModeSubtract
	}
	return c
}

// Validate the configuration.
func (c Config) Validate() error {
	if c.NumComponents <= 0 {
		return errors.Errorf("number of components must be > 0, got %d", c.NumComponents)
	}
	if !c.Mode.IsValid() {
		return errors.Errorf("invalid combination mode %s", c.Mode)
	}
	if math.IsNaN(c.DataScale) || math.IsInf(c.DataScale, 0) {
		return errors.Errorf("data scale must be finite, got %g", c.DataScale)
	}
	return nil
}

// Op returns the kernel operation for the configuration.
func (c Config) Op() kernels.Op {
	return kernels.Op{Mode: c.Mode, ZeroFirst: c.ZeroFirst, Scale: c.DataScale}
}

// String implements fmt.Stringer.
func (c Config) String() string {
	return fmt.Sprintf("scan.Config{components=%d, scale=%g, mode=%s, zeroFirst=%v, kernel=%q, fallback=%v}",
		c.NumComponents, c.DataScale, c.Mode, c.ZeroFirst, c.Kernel, c.Fallback)
}
