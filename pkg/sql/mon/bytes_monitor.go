// Copyright 2025 The Barnacle Authors.
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

// Package mon tracks memory reservations against a budget.
//
// A BytesMonitor is given a capacity at construction and hands out
// reservations to BoundAccounts opened against it. Reservations fail with an
// error when they would bring the monitor over its capacity; the caller is
// expected to degrade gracefully rather than allocate. Accounts release
// their reservations back to the monitor when closed, and a monitor checks
// at Stop() time that everything was returned.
package mon

import (
	"context"
	"math"

	"github.com/barnacledb/barnacle/pkg/util/humanizeutil"
	"github.com/barnacledb/barnacle/pkg/util/log"
	"github.com/barnacledb/barnacle/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
)

// BytesMonitor defines an object that can track and limit memory usage by
// other objects. A monitor is shared by any number of BoundAccounts; the
// accounts themselves are not thread-safe but the monitor is.
type BytesMonitor struct {
	// name identifies this monitor in logs and error messages.
	name string

	// limit specifies a hard capacity on the budget. Reservations that would
	// bring curAllocated above this value fail.
	limit int64

	mu struct {
		syncutil.Mutex

		// curAllocated tracks the current amount of bytes reserved from this
		// monitor.
		curAllocated int64

		// maxAllocated tracks the high water mark of reservations.
		maxAllocated int64
	}
}

// NewMonitor creates a new monitor with the given capacity, in bytes.
func NewMonitor(name string, limit int64) *BytesMonitor {
	return &BytesMonitor{name: name, limit: limit}
}

// NewUnlimitedMonitor creates a new monitor with unlimited capacity.
func NewUnlimitedMonitor(name string) *BytesMonitor {
	return NewMonitor(name, math.MaxInt64)
}

// Stop completes a monitoring region. All accounts must have been closed
// beforehand; leftover reservations indicate a leak and are reported as an
// assertion failure.
func (mm *BytesMonitor) Stop(ctx context.Context) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if log.V(1) {
		log.Infof(ctx, "%s, bytes usage max %s", mm.name, humanizeutil.IBytes(mm.mu.maxAllocated))
	}
	if mm.mu.curAllocated != 0 {
		panic(errors.AssertionFailedf(
			"%s: unexpected %d leftover bytes", mm.name, mm.mu.curAllocated))
	}
}

// Name returns the name of the monitor.
func (mm *BytesMonitor) Name() string { return mm.name }

// AllocBytes returns the current number of allocated bytes in this monitor.
func (mm *BytesMonitor) AllocBytes() int64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.mu.curAllocated
}

// MaximumBytes returns the maximum number of bytes that were allocated by
// this monitor at one time.
func (mm *BytesMonitor) MaximumBytes() int64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.mu.maxAllocated
}

// MakeBoundAccount creates a BoundAccount connected to the given monitor.
func (mm *BytesMonitor) MakeBoundAccount() BoundAccount {
	return BoundAccount{mon: mm}
}

// reserveBytes declares an allocation to this monitor. An error is returned
// if the allocation is denied.
func (mm *BytesMonitor) reserveBytes(ctx context.Context, x int64) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	// Overflow-safe check for curAllocated+x > limit.
	if mm.mu.curAllocated > mm.limit-x {
		return errors.Errorf(
			"%s: memory budget exceeded: %d bytes requested, %d currently allocated, %d bytes in budget",
			mm.name, x, mm.mu.curAllocated, mm.limit)
	}
	mm.mu.curAllocated += x
	if mm.mu.maxAllocated < mm.mu.curAllocated {
		mm.mu.maxAllocated = mm.mu.curAllocated
	}
	return nil
}

// releaseBytes releases bytes previously successfully registered via
// reserveBytes.
func (mm *BytesMonitor) releaseBytes(ctx context.Context, x int64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.mu.curAllocated < x {
		panic(errors.AssertionFailedf(
			"%s: no bytes to release, wanted %d, have %d", mm.name, x, mm.mu.curAllocated))
	}
	mm.mu.curAllocated -= x
}

// BoundAccount tracks the cumulated allocations for one client of a
// BytesMonitor. Instances of BoundAccount are not thread-safe; the client
// must serialize access itself.
type BoundAccount struct {
	used int64
	mon  *BytesMonitor
}

// NewStandaloneUnlimitedAccount creates a BoundAccount that is not
// connected to any monitor. Its allocations always succeed but are still
// tracked, for reporting.
func NewStandaloneUnlimitedAccount() *BoundAccount {
	return &BoundAccount{}
}

// Used returns the number of bytes currently allocated through this account.
func (b *BoundAccount) Used() int64 { return b.used }

// Monitor returns the BoundAccount's monitor, or nil for a standalone
// account.
func (b *BoundAccount) Monitor() *BytesMonitor { return b.mon }

// Grow extends the account's reservation by x bytes, failing with the
// monitor's budget error if the reservation is denied.
func (b *BoundAccount) Grow(ctx context.Context, x int64) error {
	if b.mon == nil {
		b.used += x
		return nil
	}
	if err := b.mon.reserveBytes(ctx, x); err != nil {
		return err
	}
	b.used += x
	return nil
}

// Shrink releases part of the account's reservation. Releasing more than
// the account holds is an assertion failure.
func (b *BoundAccount) Shrink(ctx context.Context, delta int64) {
	if delta > b.used {
		panic(errors.AssertionFailedf(
			"no bytes in account to release, wanted %d, have %d", delta, b.used))
	}
	if b.mon != nil {
		b.mon.releaseBytes(ctx, delta)
	}
	b.used -= delta
}

// Close releases the account's entire reservation back to its monitor. The
// account can be reused after Close.
func (b *BoundAccount) Close(ctx context.Context) {
	if b.used > 0 && b.mon != nil {
		b.mon.releaseBytes(ctx, b.used)
	}
	b.used = 0
}
