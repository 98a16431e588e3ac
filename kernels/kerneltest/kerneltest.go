// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kerneltest holds test utilities for packages that depend on the kernels package.
package kerneltest

import (
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/gomlx/skymap/kernels"
	_ "github.com/gomlx/skymap/kernels/default"
	"k8s.io/klog/v2"
)

var (
	kernelsOnce     sync.Once
	officialKernels = make(map[string]kernels.Kernel)

	// officialConfigs: the host kernel in parallel and sequential modes, and the compiled kernel on
	// the pure Go GoMLX backend.
	officialConfigs = []string{"host", "host:0", "compiled:go"}
)

func init() {
	if selected := os.Getenv(kernels.ConfigEnvVar); selected != "" {
		officialConfigs = []string{selected}
	}
}

// BuildTestKernels creates (once) the kernels used for tests and returns their configurations.
//
// If the SKYMAP_KERNEL environment variable is set, only that configuration is used.
func BuildTestKernels() []string {
	kernelsOnce.Do(func() {
		for ii, config := range officialConfigs {
			kernel, err := kernels.NewWithConfig(config)
			if err != nil {
				if ii == 0 {
					klog.Fatalf("Failed to create kernel %q: %+v", config, err)
				}
				klog.Errorf("Failed to create kernel %q: %+v", config, err)
				continue
			}
			officialKernels[config] = kernel
		}
	})
	return officialConfigs
}

// TestAllKernels iterates over the test kernels and calls testFn for each of them, as a sub-test named
// after the kernel configuration.
//
// Kernels whose configuration is in excludeConfigs are skipped.
func TestAllKernels(t *testing.T, testFn func(t *testing.T, kernel kernels.Kernel), excludeConfigs ...string) {
	for _, config := range BuildTestKernels() {
		kernel := officialKernels[config]
		if kernel == nil || slices.Contains(excludeConfigs, config) {
			continue
		}
		t.Run(config, func(t *testing.T) {
			testFn(t, kernel)
		})
	}
}
