// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// skymap emulates a cluster of workers holding a distributed sky map: it generates synthetic
// observations, bins them into each worker's local map, scans the local maps back into the
// timestreams and checks that the per-worker scans add up to a full-sky scan.
//
// Example:
//
//	skymap -kernel=compiled:go -workers=4 -observations=8 -components=3
package main

import (
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/skymap/internal/synth"
	"github.com/gomlx/skymap/kernels"
	_ "github.com/gomlx/skymap/kernels/default"
	"github.com/gomlx/skymap/pkg/core/pixels"
	"github.com/gomlx/skymap/pkg/core/tod"
	"github.com/gomlx/skymap/pkg/scan"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagKernel = flag.String("kernel", "",
		fmt.Sprintf("Kernel configuration \"name:config\". Available kernels: %q. "+
			"If empty, uses $%s or the default kernel.", kernels.List(), kernels.ConfigEnvVar))
	flagWorkers      = flag.Int("workers", 4, "Number of emulated workers sharing the sky map.")
	flagObservations = flag.Int("observations", 8, "Number of synthetic observations.")
	flagDetectors    = flag.Int("detectors", 4, "Number of detectors per observation.")
	flagSamples      = flag.Int("samples", 10_000, "Number of samples per detector.")
	flagNumPixels    = flag.Int64("nside_pixels", 12*64*64, "Total number of pixels of the sky map.")
	flagSubmapSize   = flag.Int("submap_size", 256, "Number of pixels per submap.")
	flagComponents   = flag.Int("components", 3, "Number of components per pixel (1 for intensity only, 3 for I/Q/U).")
	flagMode         = flag.String("mode", "accumulate", "How binned samples combine with the map: \"overwrite\", \"accumulate\" or \"subtract\".")
	flagFlagged      = flag.Float64("flagged", 0.02, "Fraction of samples with invalid pointing.")
	flagFallback     = flag.Bool("fallback", false, "Fall back to the host kernel if the selected kernel fails.")
	flagMetricsAddr  = flag.String("metrics_addr", "", "If set, serve Prometheus metrics on this address (e.g. \":9090\").")
	flagSeed         = flag.Uint64("seed", 42, "Seed of the synthetic observations.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagMetricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			klog.Infof("Serving metrics on %s/metrics", *flagMetricsAddr)
			if err := http.ListenAndServe(*flagMetricsAddr, nil); err != nil {
				klog.Fatalf("Metrics server failed: %+v", err)
			}
		}()
	}
	if err := run(); err != nil {
		klog.Errorf("Failed: %+v", err)
		os.Exit(1)
	}
}

// worker emulates one process of the cluster.
type worker struct {
	id         int
	localMap   *pixels.LocalMap
	hitSubmaps int
	binTime    time.Duration
	scanTime   time.Duration
}

func run() error {
	mode, err := kernels.ParseMode(*flagMode)
	if err != nil {
		return err
	}
	config := scan.Config{
		NumComponents: *flagComponents,
		DataScale:     1,
		Mode:          mode,
		Kernel:        *flagKernel,
		Fallback:      *flagFallback,
	}
	scanner, err := scan.New(config)
	if err != nil {
		return err
	}
	defer scanner.Finalize()
	klog.Infof("Kernel: %s", scanner.Kernel().Description())

	observations, err := synth.Observations("obs", *flagObservations, synth.Config{
		NumPixels:       *flagNumPixels,
		NumDetectors:    *flagDetectors,
		NumSamples:      *flagSamples,
		NumComponents:   *flagComponents,
		FlaggedFraction: *flagFlagged,
		Seed:            *flagSeed,
	})
	if err != nil {
		return err
	}

	dists, err := pixels.Partition(*flagNumPixels, *flagSubmapSize, *flagWorkers)
	if err != nil {
		return err
	}
	workers := make([]*worker, len(dists))
	for ii, dist := range dists {
		workers[ii] = &worker{id: ii, localMap: must.M1(pixels.NewLocalMap(dist, *flagComponents))}
	}
	fullSky := must.M1(pixels.Partition(*flagNumPixels, *flagSubmapSize, 1))[0]
	reference := &worker{id: -1, localMap: must.M1(pixels.NewLocalMap(fullSky, *flagComponents))}
	if err := countHitSubmaps(observations, *flagNumPixels, *flagSubmapSize, append(workers, reference)); err != nil {
		return err
	}

	// Bin: all workers read the same observation concurrently, each into its own map.
	pBar := newProgressBar(len(observations), "Binning")
	for _, obs := range observations {
		if err := parallelWorkers(workers, func(w *worker) error {
			start := time.Now()
			err := scanner.BinObservation(w.localMap, obs)
			w.binTime += time.Since(start)
			return err
		}); err != nil {
			return err
		}
		start := time.Now()
		if err := scanner.BinObservation(reference.localMap, obs); err != nil {
			return err
		}
		reference.binTime += time.Since(start)
		_ = pBar.Add(1)
	}
	_ = pBar.Finish()
	fmt.Println()

	// Scan: each worker writes into its own copy of the timestreams, which are then added up.
	scanConfig := config
	scanConfig.ZeroFirst = true
	scanner, err = scanner.WithConfig(scanConfig)
	if err != nil {
		return err
	}
	var maxDiff float64
	pBar = newProgressBar(len(observations), "Scanning")
	for _, obs := range observations {
		copies := make([]*tod.Detectors, len(workers))
		for ii := range workers {
			copies[ii] = withDataCopy(obs.Detectors)
		}
		if err := parallelWorkers(workers, func(w *worker) error {
			start := time.Now()
			err := scanner.ScanMap(w.localMap, copies[w.id], obs.Intervals)
			w.scanTime += time.Since(start)
			return errors.WithMessagef(err, "observation %q", obs.Name)
		}); err != nil {
			return err
		}
		full := withDataCopy(obs.Detectors)
		start := time.Now()
		if err := scanner.ScanMap(reference.localMap, full, obs.Intervals); err != nil {
			return errors.WithMessagef(err, "observation %q", obs.Name)
		}
		reference.scanTime += time.Since(start)
		maxDiff = max(maxDiff, compareScans(obs, full, copies))
		_ = pBar.Add(1)
	}
	_ = pBar.Finish()
	fmt.Println()

	report(scanner, observations, workers, reference, maxDiff)
	if maxDiff > 1e-9 {
		return errors.Errorf("per-worker scans differ from the full-sky scan by up to %g", maxDiff)
	}
	return nil
}

// parallelWorkers runs fn for every worker in its own goroutine, and returns the first error.
func parallelWorkers(workers []*worker, fn func(w *worker) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(workers))
	for ii, w := range workers {
		wg.Go(func() {
			errs[ii] = fn(w)
		})
	}
	wg.Wait()
	for ii, err := range errs {
		if err != nil {
			return errors.WithMessagef(err, "worker #%d", ii)
		}
	}
	return nil
}

// countHitSubmaps sets for each worker how many of its local submaps are touched by the observations.
func countHitSubmaps(observations []*tod.Observation, numPixels int64, submapSize int, workers []*worker) error {
	var streams [][]int64
	for _, obs := range observations {
		for row := range obs.Detectors.Pixels.Rows() {
			streams = append(streams, obs.Detectors.Pixels.Row(row))
		}
	}
	hit, err := pixels.SubmapsHit(numPixels, submapSize, streams...)
	if err != nil {
		return err
	}
	for _, w := range workers {
		dist := w.localMap.Distribution()
		w.hitSubmaps = 0
		for _, submap := range hit {
			if dist.Global2Local()[submap] != pixels.Unowned {
				w.hitSubmaps++
			}
		}
	}
	return nil
}

// withDataCopy returns detectors sharing pointing with det, but with their own copy of the timestream.
func withDataCopy(det *tod.Detectors) *tod.Detectors {
	clone := *det
	var data []float64
	det.Data.ConstFlatData(func(flat []float64) {
		data = append(data, flat...)
	})
	clone.Data = must.M1(tod.FromFlatData(data, det.Data.Rows(), det.Data.Samples(), det.Data.Width()))
	return &clone
}

// compareScans returns the maximum absolute difference, within the intervals, between the full-sky
// scan and the sum of the per-worker scans.
func compareScans(obs *tod.Observation, full *tod.Detectors, parts []*tod.Detectors) float64 {
	var maxDiff float64
	for row := range full.Data.Rows() {
		want := full.Data.Row(row)
		sum := make([]float64, len(want))
		for _, part := range parts {
			for ii, v := range part.Data.Row(row) {
				sum[ii] += v
			}
		}
		for _, iv := range obs.Intervals {
			for sample := iv.First; sample <= iv.Last; sample++ {
				maxDiff = max(maxDiff, math.Abs(want[sample]-sum[sample]))
			}
		}
	}
	return maxDiff
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("observations"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
}
