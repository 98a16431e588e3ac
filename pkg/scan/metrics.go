// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scan

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics, labeled by operation ("scan" or "bin") and kernel name only.
var (
	invocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymap_invocations_total",
		Help: "Number of scan/bin invocations that processed at least one sample",
	}, []string{"op", "kernel"})
	samplesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymap_samples_total",
		Help: "Number of real (non-padding) samples processed",
	}, []string{"op"})
	invalidSamplesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymap_invalid_samples_total",
		Help: "Number of real samples whose pixel is flagged or not held by the local map, contributing zero",
	}, []string{"op"})
	paddingTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymap_padding_positions_total",
		Help: "Number of padding positions added to make batches rectangular",
	}, []string{"op"})
	fallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymap_kernel_fallbacks_total",
		Help: "Number of kernel failures recovered by falling back to the host kernel",
	}, []string{"op", "kernel"})
	failuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymap_failures_total",
		Help: "Number of scan/bin invocations that failed",
	}, []string{"op"})
	kernelSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skymap_kernel_seconds",
		Help:    "Time spent in the kernel transform per invocation",
		Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
	}, []string{"op", "kernel"})
)

func init() {
	prometheus.MustRegister(invocationsTotal, samplesTotal, invalidSamplesTotal, paddingTotal,
		fallbacksTotal, failuresTotal, kernelSeconds)
}
