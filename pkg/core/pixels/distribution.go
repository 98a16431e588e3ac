// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pixels describes how a pixelized sky map is split in blocks of pixels ("submaps")
// and which of those blocks are owned by the local worker.
//
// A Distribution maps global pixel indices to (local submap, pixel within submap) pairs, and
// LocalMap holds the values of the locally owned submaps.
package pixels

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// Unowned is the value of a global-to-local table entry whose submap is not held locally.
// It is also what GlobalToLocal returns for samples that cannot be resolved.
const Unowned int64 = -1

// Distribution of the global pixel universe in submaps, and the table of locally owned submaps.
//
// It is immutable after construction and safe for concurrent use.
type Distribution struct {
	numPixels    int64
	submapSize   int64
	global2local []int64
	localSubmaps []int64
}

// NewDistribution creates a Distribution of numPixels pixels split in submaps of submapSize pixels,
// where the given global submaps are owned locally.
//
// Local submap ids are assigned in the order given in localSubmaps.
// If numPixels is not a multiple of submapSize, the last submap is partial.
func NewDistribution(numPixels int64, submapSize int, localSubmaps []int64) (*Distribution, error) {
	if submapSize <= 0 {
		return nil, errors.Errorf("submap size must be > 0, got %d", submapSize)
	}
	if numPixels <= 0 {
		return nil, errors.Errorf("number of pixels must be > 0, got %d", numPixels)
	}
	size := int64(submapSize)
	numSubmaps := (numPixels + size - 1) / size
	global2local := slices.Repeat([]int64{Unowned}, int(numSubmaps))
	for localID, submap := range localSubmaps {
		if submap < 0 || submap >= numSubmaps {
			return nil, errors.Errorf("local submap #%d is %d, out of range [0, %d)", localID, submap, numSubmaps)
		}
		if global2local[submap] != Unowned {
			return nil, errors.Errorf("submap %d listed more than once as local", submap)
		}
		global2local[submap] = int64(localID)
	}
	return &Distribution{
		numPixels:    numPixels,
		submapSize:   size,
		global2local: global2local,
		localSubmaps: slices.Clone(localSubmaps),
	}, nil
}

// NewDistributionFromTable creates a Distribution from an explicit global-to-local table: one entry per
// global submap holding the local submap id, or Unowned.
//
// Local ids must be unique and cover [0, numOwned) with no gaps.
// The pixel universe is taken to be len(global2local) * submapSize.
func NewDistributionFromTable(submapSize int, global2local []int64) (*Distribution, error) {
	if submapSize <= 0 {
		return nil, errors.Errorf("submap size must be > 0, got %d", submapSize)
	}
	if len(global2local) == 0 {
		return nil, errors.New("global-to-local table is empty")
	}
	numOwned := 0
	for _, local := range global2local {
		if local != Unowned {
			numOwned++
		}
	}
	localSubmaps := slices.Repeat([]int64{Unowned}, numOwned)
	for submap, local := range global2local {
		if local == Unowned {
			continue
		}
		if local < 0 || local >= int64(numOwned) {
			return nil, errors.Errorf("global-to-local entry for submap %d is %d, it must be %d (unowned) or in [0, %d)",
				submap, local, Unowned, numOwned)
		}
		if localSubmaps[local] != Unowned {
			return nil, errors.Errorf("local submap %d is assigned to both global submaps %d and %d",
				local, localSubmaps[local], submap)
		}
		localSubmaps[local] = int64(submap)
	}
	return &Distribution{
		numPixels:    int64(len(global2local)) * int64(submapSize),
		submapSize:   int64(submapSize),
		global2local: slices.Clone(global2local),
		localSubmaps: localSubmaps,
	}, nil
}

// NumPixels in the global pixel universe.
func (d *Distribution) NumPixels() int64 { return d.numPixels }

// SubmapSize is the number of pixels per submap.
func (d *Distribution) SubmapSize() int { return int(d.submapSize) }

// NumSubmaps is the global number of submaps.
func (d *Distribution) NumSubmaps() int { return len(d.global2local) }

// NumLocalSubmaps is the number of submaps owned locally.
func (d *Distribution) NumLocalSubmaps() int { return len(d.localSubmaps) }

// NumLocalPixels is the number of pixels held by a local map: NumLocalSubmaps * SubmapSize.
func (d *Distribution) NumLocalPixels() int { return len(d.localSubmaps) * int(d.submapSize) }

// Global2Local returns the global-to-local table. It must not be modified.
func (d *Distribution) Global2Local() []int64 { return d.global2local }

// LocalSubmaps returns the global submap ids owned locally, indexed by local id. It must not be modified.
func (d *Distribution) LocalSubmaps() []int64 { return d.localSubmaps }

// GlobalToLocal resolves a global pixel index to its local submap and the pixel offset within the submap.
//
// Negative pixels (flagged samples), pixels beyond the universe and pixels of submaps not owned
// locally resolve to (Unowned, Unowned).
func (d *Distribution) GlobalToLocal(pixel int64) (submap, subpix int64) {
	if pixel < 0 || pixel >= d.numPixels {
		return Unowned, Unowned
	}
	local := d.global2local[pixel/d.submapSize]
	if local == Unowned {
		return Unowned, Unowned
	}
	return local, pixel % d.submapSize
}

// LocalIndex returns the index of the pixel in a local map (without the components axis),
// that is local_submap * SubmapSize + subpix, or -1 if the pixel is not resolvable locally.
func (d *Distribution) LocalIndex(pixel int64) int64 {
	submap, subpix := d.GlobalToLocal(pixel)
	if submap == Unowned {
		return -1
	}
	return submap*d.submapSize + subpix
}

// OwnsPixel returns whether the pixel belongs to a locally owned submap.
func (d *Distribution) OwnsPixel(pixel int64) bool {
	submap, _ := d.GlobalToLocal(pixel)
	return submap != Unowned
}

// String implements fmt.Stringer.
func (d *Distribution) String() string {
	return fmt.Sprintf("Distribution(%d pixels, %d submaps of %d pixels, %d local)",
		d.numPixels, len(d.global2local), d.submapSize, len(d.localSubmaps))
}

// SubmapsHit returns the sorted list of global submaps touched by any of the given pixel streams.
// Negative pixels and pixels beyond numPixels are ignored.
//
// It is used to decide which submaps a worker needs to hold for the observations it processes.
func SubmapsHit(numPixels int64, submapSize int, pixelStreams ...[]int64) ([]int64, error) {
	if submapSize <= 0 {
		return nil, errors.Errorf("submap size must be > 0, got %d", submapSize)
	}
	if numPixels <= 0 {
		return nil, errors.Errorf("number of pixels must be > 0, got %d", numPixels)
	}
	size := int64(submapSize)
	numSubmaps := (numPixels + size - 1) / size
	hit := make([]bool, numSubmaps)
	for _, stream := range pixelStreams {
		for _, pixel := range stream {
			if pixel < 0 || pixel >= numPixels {
				continue
			}
			hit[pixel/size] = true
		}
	}
	var submaps []int64
	for submap, isHit := range hit {
		if isHit {
			submaps = append(submaps, int64(submap))
		}
	}
	return submaps, nil
}

// Partition splits all submaps of a numPixels universe among numWorkers workers, in a static
// round-robin: submap s is owned by worker s % numWorkers.
//
// Every submap is owned by exactly one of the returned distributions.
func Partition(numPixels int64, submapSize int, numWorkers int) ([]*Distribution, error) {
	if numWorkers <= 0 {
		return nil, errors.Errorf("number of workers must be > 0, got %d", numWorkers)
	}
	if submapSize <= 0 {
		return nil, errors.Errorf("submap size must be > 0, got %d", submapSize)
	}
	size := int64(submapSize)
	numSubmaps := (numPixels + size - 1) / size
	owned := make([][]int64, numWorkers)
	for submap := range numSubmaps {
		worker := int(submap % int64(numWorkers))
		owned[worker] = append(owned[worker], submap)
	}
	dists := make([]*Distribution, numWorkers)
	for worker := range numWorkers {
		var err error
		dists[worker], err = NewDistribution(numPixels, submapSize, owned[worker])
		if err != nil {
			return nil, errors.WithMessagef(err, "while partitioning submaps for worker #%d", worker)
		}
	}
	return dists, nil
}
