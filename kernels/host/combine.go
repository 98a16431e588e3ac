// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package host

import (
	"github.com/ajroetker/go-highway/hwy"
)

// combine sets out[i] = prior[i] + coef*update[i], or out[i] = coef*update[i] if prior is nil.
//
// Full vectors are processed with SIMD and the remaining tail with scalar code. The scalar
// code rounds the product before adding (explicit conversion), so it matches the vector path and
// results don't depend on where a value falls relative to the vector boundaries.
func combine(out, prior, update []float64, coef float64) {
	n := len(out)
	vCoef := hwy.Set(coef)
	lanes := vCoef.NumLanes()
	ii := 0
	if prior == nil {
		for ; ii+lanes <= n; ii += lanes {
			hwy.Store(hwy.Mul(hwy.Load(update[ii:]), vCoef), out[ii:])
		}
		for ; ii < n; ii++ {
			out[ii] = coef * update[ii]
		}
		return
	}

	for ; ii+lanes <= n; ii += lanes {
		product := hwy.Mul(hwy.Load(update[ii:]), vCoef)
		hwy.Store(hwy.Add(hwy.Load(prior[ii:]), product), out[ii:])
	}
	for ; ii < n; ii++ {
		out[ii] = prior[ii] + float64(coef*update[ii])
	}
}
