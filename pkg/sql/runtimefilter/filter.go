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
	"sync/atomic"
	"time"

	"github.com/barnacledb/barnacle/pkg/util/bloomfilter"
	"github.com/barnacledb/barnacle/pkg/util/timeutil"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
)

// Filter is one runtime filter slot, tracking whether its payload has
// arrived and when. Producers hold a Filter in the bank's produced map;
// probe-side operators hold the consumed counterpart and block on
// WaitForArrival before evaluating rows.
//
// The payload is set at most once, under the owning bank's lock; readers
// probe it without locking.
type Filter struct {
	desc FilterDesc

	// registeredAt anchors both the arrival delay measurement and the
	// WaitForArrival timeout.
	registeredAt crtime.Mono

	// payload is nil until the filter arrives and immutable afterwards.
	payload atomic.Pointer[bloomfilter.BloomFilter]

	// arrivedAt holds the crtime.Mono arrival time, or zero while the
	// filter is pending. It is written after payload, so observing a
	// non-zero arrival time implies the payload is visible.
	arrivedAt atomic.Int64

	// arrived is closed when the payload is set, waking any waiters.
	arrived chan struct{}
}

func newFilter(desc FilterDesc) *Filter {
	return &Filter{
		desc:         desc,
		registeredAt: crtime.NowMono(),
		arrived:      make(chan struct{}),
	}
}

// Desc returns the filter's registration metadata.
func (f *Filter) Desc() FilterDesc {
	return f.desc
}

// HasFilter returns true once the filter's payload has been set. It never
// reverts to false.
func (f *Filter) HasFilter() bool {
	return f.arrivedAt.Load() != 0
}

// setFilter installs the payload and marks the filter arrived. Called by
// the owning bank; installing a payload twice is a contract violation.
func (f *Filter) setFilter(bf *bloomfilter.BloomFilter) {
	if f.HasFilter() {
		panic(errors.AssertionFailedf(
			"filter %d received a second payload", f.desc.FilterID))
	}
	f.payload.Store(bf)
	f.arrivedAt.Store(int64(crtime.NowMono()))
	close(f.arrived)
}

// MayContain probes the filter for a hashed key. A pending filter prunes
// nothing: every key is possibly present until the payload arrives.
func (f *Filter) MayContain(h uint64) bool {
	bf := f.payload.Load()
	if bf == nil {
		return true
	}
	return bf.MayContainHash(h)
}

// WaitForArrival blocks until the filter's payload arrives or the timeout
// expires, and returns HasFilter(). The timeout is measured from the
// filter's registration, not from the call: a consumer that starts probing
// late waits only for the remainder, if any.
func (f *Filter) WaitForArrival(timeout time.Duration) bool {
	if f.HasFilter() {
		return true
	}
	remaining := timeout - crtime.NowMono().Sub(f.registeredAt)
	if remaining <= 0 {
		return f.HasFilter()
	}
	var timer timeutil.Timer
	defer timer.Stop()
	timer.Reset(remaining)
	select {
	case <-f.arrived:
		return true
	case <-timer.C:
		timer.Read = true
		return f.HasFilter()
	}
}

// ArrivalDelay returns the time between the filter's registration and the
// arrival of its payload, or zero while the filter is pending.
func (f *Filter) ArrivalDelay() time.Duration {
	arrivedAt := crtime.Mono(f.arrivedAt.Load())
	if arrivedAt == 0 {
		return 0
	}
	return arrivedAt.Sub(f.registeredAt)
}
