// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels defines the API for the implementations of the scan and bin transforms, and
// a registry to select them by name.
//
// A Kernel is a pure batched transform: it takes a padded Batch of samples and a read-only view of
// the local map, and it returns new values. It never modifies its inputs; writing the results back
// is done by the caller (see package scan).
//
// To make kernels available, import them with:
//
//	import _ "github.com/gomlx/skymap/kernels/default"
//
// And then create one with kernels.New(), or kernels.NewWithConfig("host:8").
package kernels

import (
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kernel implements the scan (map to timestream) and bin (timestream to map) transforms.
//
// Implementations must be safe for concurrent use.
type Kernel interface {
	// Name returns the short name of the kernel, as registered. E.g.: "host".
	Name() string

	// Description is a longer description of the kernel, including its configuration.
	Description() string

	// Scan returns, for every position of the batch (padding included), the combination of the current
	// timestream value with the map sampled at the position's pixel:
	//
	//	update = op.Scale * sum_c(map[submap, subpix, c] * weights[c])
	//	result = combine(data, update, op)
	//
	// Samples whose pixel doesn't resolve to a local submap have update = 0.
	// The returned slice has batch.Shape.Size() elements.
	Scan(batch *Batch, view *MapView, op Op) ([]float64, error)

	// Bin returns the map updated with the contributions of the real samples of the batch:
	//
	//	map[submap, subpix, c] (+|-)= op.Scale * weights[c] * data
	//
	// Padding positions and samples whose pixel doesn't resolve to a local submap don't contribute.
	// The returned slice has the same layout as view.Data.
	Bin(batch *Batch, view *MapView, op Op) ([]float64, error)

	// Finalize releases the resources associated with the kernel. It's not valid after that.
	Finalize()
}

// Constructor takes a kernel specific configuration string and returns a new Kernel.
type Constructor func(config string) (Kernel, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a kernel constructor under the given name. It's typically called from an init() function.
//
// If a kernel with the same name is registered, the constructor is replaced.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the sorted names of the registered kernels.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the configuration used by New if the ConfigEnvVar environment variable is not set.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default kernel configuration to use.
//
// The format of config is "<kernel_name>:<kernel_configuration>".
const ConfigEnvVar = "SKYMAP_KERNEL"

// New returns a new default Kernel.
//
// The default is:
//
// 1. The environment variable ConfigEnvVar (SKYMAP_KERNEL) is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered kernel is used with an empty configuration.
func New() (Kernel, error) {
	if config, found := os.LookupEnv(ConfigEnvVar); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig creates a kernel from a configuration string formatted as "<kernel_name>:<kernel_configuration>".
//
// The "<kernel_name>" is the name of a registered kernel (e.g.: "host" or "compiled"), and
// "<kernel_configuration>" is kernel specific (e.g.: for "compiled" it is the GoMLX backend configuration).
// If config is empty, the first registered kernel is used.
func NewWithConfig(config string) (Kernel, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New(`no registered kernels -- maybe import the default ones with import _ "github.com/gomlx/skymap/kernels/default"?`)
	}
	kernelName, kernelConfig := config, ""
	if idx := strings.Index(config, ":"); idx != -1 {
		kernelName, kernelConfig = config[:idx], config[idx+1:]
	}
	if kernelName == "" {
		kernelName = firstRegistered
	}
	constructor, found := registeredConstructors[kernelName]
	if !found {
		return nil, errors.Errorf("can't find kernel %q for configuration %q, registered kernels: %q",
			kernelName, config, List())
	}
	kernel, err := constructor(kernelConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create kernel %q", kernelName)
	}
	klog.V(1).Infof("created kernel %s", kernel.Description())
	return kernel, nil
}
