// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package synth generates deterministic synthetic observations: raster-scan pointing, polarization
// weights, white-noise timestreams and flagged samples.
//
// It is used for tests and for the demo command, not for physics.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gomlx/skymap/pkg/core/tod"
	"github.com/pkg/errors"
)

// Flag bits set by the generator.
const (
	// FlagInvalid marks samples with no valid pointing: their pixel is -1.
	FlagInvalid uint8 = 1 << iota

	// FlagGlitch marks samples with valid pointing but unusable data.
	FlagGlitch
)

// Config of the generated observations.
type Config struct {
	NumPixels     int64
	NumDetectors  int
	NumSamples    int
	NumComponents int

	// FlaggedFraction of samples marked FlagInvalid, and GlitchFraction of samples marked FlagGlitch.
	FlaggedFraction, GlitchFraction float64

	// Seed for the random generator: the same Config always generates the same observation.
	Seed uint64
}

// Validate the configuration.
func (c Config) Validate() error {
	if c.NumPixels <= 0 || c.NumDetectors < 0 || c.NumSamples < 0 || c.NumComponents <= 0 {
		return errors.Errorf("invalid synthetic observation configuration %+v", c)
	}
	if c.FlaggedFraction < 0 || c.FlaggedFraction > 1 || c.GlitchFraction < 0 || c.GlitchFraction > 1 {
		return errors.Errorf("flagged and glitch fractions must be in [0, 1], got %g and %g",
			c.FlaggedFraction, c.GlitchFraction)
	}
	return nil
}

// Weights returns the pointing weights of numComponents components for polarization angle psi:
// 1 for intensity, then cos(2*psi), sin(2*psi), cos(4*psi), sin(4*psi), ...
func Weights(psi float64, numComponents int) []float64 {
	weights := make([]float64, numComponents)
	weights[0] = 1
	for c := 1; c < numComponents; c++ {
		harmonic := float64(2 * ((c + 1) / 2))
		if c%2 == 1 {
			weights[c] = math.Cos(harmonic * psi)
		} else {
			weights[c] = math.Sin(harmonic * psi)
		}
	}
	return weights
}

// Observation generates the observation with the given name.
//
// The rows of the packed arrays are stored in reverse detector order, so detectors are addressed
// through non-trivial row indices. Observation.Flags marks the flagged samples (shared by all
// detectors), and the intervals are the samples without any flag.
func Observation(name string, config Config) (*tod.Observation, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(config.Seed, uint64(len(name))))
	numDet, numSamples, nnz := config.NumDetectors, config.NumSamples, config.NumComponents

	pixelsArr, err := tod.NewPacked[int64](numDet, numSamples, 1)
	if err != nil {
		return nil, err
	}
	weightsArr, err := tod.NewPacked[float64](numDet, numSamples, nnz)
	if err != nil {
		return nil, err
	}
	dataArr, err := tod.NewPacked[float64](numDet, numSamples, 1)
	if err != nil {
		return nil, err
	}

	flags := make([]uint8, numSamples)
	for sample := range flags {
		if rng.Float64() < config.FlaggedFraction {
			flags[sample] |= FlagInvalid
		}
		if rng.Float64() < config.GlitchFraction {
			flags[sample] |= FlagGlitch
		}
	}

	det := &tod.Detectors{
		Pixels: pixelsArr, Weights: weightsArr, Data: dataArr,
		PixelIndex: make([]int, numDet), WeightIndex: make([]int, numDet), DataIndex: make([]int, numDet),
	}
	stride := max(1, config.NumPixels/int64(max(numSamples, 1)))
	for detector := range numDet {
		row := numDet - 1 - detector
		det.PixelIndex[detector], det.WeightIndex[detector], det.DataIndex[detector] = row, row, row

		offset := rng.Int64N(config.NumPixels)
		psi0 := rng.Float64() * math.Pi
		pixels := make([]int64, numSamples)
		weights := make([]float64, 0, numSamples*nnz)
		data := make([]float64, numSamples)
		for sample := range numSamples {
			if flags[sample]&FlagInvalid != 0 {
				pixels[sample] = -1
			} else {
				pixels[sample] = (offset + int64(sample)*stride) % config.NumPixels
			}
			psi := psi0 + 2*math.Pi*float64(sample)/float64(numSamples)
			weights = append(weights, Weights(psi, nnz)...)
			data[sample] = rng.NormFloat64()
		}
		if err := pixelsArr.SetRow(row, pixels); err != nil {
			return nil, err
		}
		if err := weightsArr.SetRow(row, weights); err != nil {
			return nil, err
		}
		if err := dataArr.SetRow(row, data); err != nil {
			return nil, err
		}
	}

	obs := tod.NewObservation(name, det)
	obs.Flags = flags
	obs.ApplyFlags(FlagInvalid | FlagGlitch)
	return obs, nil
}

// Observations generates n observations named "<prefix>-<i>", each with a different seed derived from config.Seed.
func Observations(prefix string, n int, config Config) ([]*tod.Observation, error) {
	observations := make([]*tod.Observation, n)
	for ii := range n {
		obsConfig := config
		obsConfig.Seed = config.Seed*1_000_003 + uint64(ii)
		var err error
		observations[ii], err = Observation(fmt.Sprintf("%s-%04d", prefix, ii), obsConfig)
		if err != nil {
			return nil, errors.WithMessagef(err, "generating observation #%d", ii)
		}
	}
	return observations, nil
}
