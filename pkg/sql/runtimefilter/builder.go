// Copyright 2026 The Barnacle Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package runtimefilter

import (
	"context"

	"github.com/axiomhq/hyperloglog"
	"github.com/barnacledb/barnacle/pkg/util/bloomfilter"
	"github.com/cespare/xxhash/v2"
)

// FilterBuilder accumulates build-side join keys into a scratch filter and
// decides, once the build completes, whether the result is worth
// publishing. Alongside the filter it maintains a distinct-count sketch of
// the keys; a filter overwhelmed by too many distinct values prunes almost
// nothing and is disabled rather than shipped.
//
// A FilterBuilder is owned by a single build-side operator goroutine and is
// not safe for concurrent use.
type FilterBuilder struct {
	bank     *Bank
	filterID FilterID

	// scratch is nil when the bank declined the allocation; the builder
	// then drops keys and publishes the always-true marker.
	scratch *bloomfilter.BloomFilter
	sketch  *hyperloglog.Sketch
}

// NewFilterBuilder allocates a builder for one produced filter. The
// returned builder may be disabled from the start if the query is out of
// filter memory; it remains usable either way.
func NewFilterBuilder(ctx context.Context, bank *Bank, filterID FilterID) *FilterBuilder {
	return &FilterBuilder{
		bank:     bank,
		filterID: filterID,
		scratch:  bank.AllocateScratchFilter(ctx),
		sketch:   hyperloglog.New(),
	}
}

// Add records one join key.
func (fb *FilterBuilder) Add(key []byte) {
	if fb.scratch == nil {
		return
	}
	fb.scratch.InsertHash(xxhash.Sum64(key))
	fb.sketch.Insert(key)
}

// Disabled reports whether the builder is dropping keys.
func (fb *FilterBuilder) Disabled() bool {
	return fb.scratch == nil
}

// EstimatedDistinct returns the approximate number of distinct keys added
// so far.
func (fb *FilterBuilder) EstimatedDistinct() uint64 {
	return fb.sketch.Estimate()
}

// Finish completes the build and hands the result to the bank for
// delivery. A disabled builder, or one whose distinct-key estimate pushes
// the false-positive rate over the configured maximum, publishes the
// always-true marker instead, so that consumers stop waiting even though
// they will prune nothing.
func (fb *FilterBuilder) Finish(ctx context.Context) {
	bf := fb.scratch
	if bf == nil || fb.bank.ShouldDisableFilter(int64(fb.sketch.Estimate())) {
		bf = bloomfilter.AlwaysTrueFilter
	}
	fb.bank.UpdateFilterFromLocal(ctx, fb.filterID, bf)
}
