// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default kernels, namely "host" and "compiled".
//
// To use it simply include:
//
//	import _ "github.com/gomlx/skymap/kernels/default"
//
// It makes "host" the default kernel, unless kernels.DefaultConfig was already set.
// The compiled kernel only includes the pure Go GoMLX backend: to make XLA available also import
// "github.com/gomlx/gomlx/backends/default".
package _default

import (
	"github.com/gomlx/skymap/kernels"
	_ "github.com/gomlx/skymap/kernels/compiled"
	"github.com/gomlx/skymap/kernels/host"
)

func init() {
	if kernels.DefaultConfig == "" {
		kernels.DefaultConfig = host.KernelName
	}
}
