// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/skymap/pkg/core/tod"
	"github.com/gomlx/skymap/pkg/scan"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

// newPlainTable returns a table with alternating row styles. Columns after the first are right-aligned.
func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Left)
			}
			return s.Align(lipgloss.Right)
		})
}

func report(scanner *scan.Scanner, observations []*tod.Observation, workers []*worker, reference *worker, maxDiff float64) {
	var numSamples, numIntervals int
	for _, obs := range observations {
		numSamples += obs.Detectors.NumDetectors() * obs.Intervals.NumSamples()
		numIntervals += len(obs.Intervals)
	}

	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable()
	table.Row("kernel", scanner.Kernel().Description())
	table.Row("configuration", scanner.Config().String())
	table.Row("# observations", humanize.Comma(int64(len(observations))))
	table.Row("# intervals", humanize.Comma(int64(numIntervals)))
	table.Row("# samples scanned", humanize.Comma(int64(numSamples)))
	table.Row("timestream memory", humanize.Bytes(uint64(tod.MemoryUse(observations...))))
	table.Row("max |full - sum(workers)|", fmt.Sprintf("%.3g", maxDiff))
	fmt.Println(table.Render())

	fmt.Println(titleStyle.Render("Workers"))
	table = newPlainTable().Headers("Worker", "Local submaps", "Hit submaps", "Local pixels", "Map memory", "Bin", "Scan")
	var maxMemory, totalMemory uint64
	for _, w := range workers {
		memory := uint64(w.localMap.Memory())
		maxMemory = max(maxMemory, memory)
		totalMemory += memory
		dist := w.localMap.Distribution()
		table.Row(fmt.Sprintf("#%d", w.id),
			humanize.Comma(int64(dist.NumLocalSubmaps())),
			humanize.Comma(int64(w.hitSubmaps)),
			humanize.Comma(int64(dist.NumLocalPixels())),
			humanize.Bytes(memory),
			w.binTime.String(), w.scanTime.String())
	}
	dist := reference.localMap.Distribution()
	table.Row("full sky",
		humanize.Comma(int64(dist.NumLocalSubmaps())),
		humanize.Comma(int64(reference.hitSubmaps)),
		humanize.Comma(int64(dist.NumLocalPixels())),
		humanize.Bytes(uint64(reference.localMap.Memory())),
		reference.binTime.String(), reference.scanTime.String())
	fmt.Println(table.Render())

	fmt.Printf("Map memory per worker: max %s, total %s\n", humanize.Bytes(maxMemory), humanize.Bytes(totalMemory))
}
