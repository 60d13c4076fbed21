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
	"testing"
	"time"

	"github.com/barnacledb/barnacle/pkg/util/bloomfilter"
	"github.com/barnacledb/barnacle/pkg/util/leaktest"
	"github.com/barnacledb/barnacle/pkg/util/log"
	"github.com/barnacledb/barnacle/pkg/util/timeutil"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/stretchr/testify/require"
)

func TestWaitForArrivalTimesOut(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	const timeout = 50 * time.Millisecond
	start := timeutil.Now()
	f := newFilter(FilterDesc{FilterID: 1})

	require.False(t, f.WaitForArrival(timeout))
	require.GreaterOrEqual(t, timeutil.Since(start), timeout)
	require.False(t, f.HasFilter())
	require.Equal(t, time.Duration(0), f.ArrivalDelay())
}

func TestWaitForArrivalWakesOnArrival(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	f := newFilter(FilterDesc{FilterID: 1})
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.setFilter(bloomfilter.AlwaysTrueFilter)
	}()

	// The wait returns well before its timeout once the payload lands.
	require.True(t, f.WaitForArrival(time.Hour))
	require.True(t, f.HasFilter())
	require.Greater(t, f.ArrivalDelay(), time.Duration(0))

	// Waits after arrival return immediately.
	require.True(t, f.WaitForArrival(0))
}

func TestWaitForArrivalTimeoutFromRegistration(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	// A consumer that shows up after the timeout has already elapsed since
	// registration does not wait at all.
	f := newFilter(FilterDesc{FilterID: 1})
	f.registeredAt = f.registeredAt + crtime.Mono(-time.Minute)

	start := timeutil.Now()
	require.False(t, f.WaitForArrival(time.Second))
	require.Less(t, timeutil.Since(start), 500*time.Millisecond)
}

func TestFilterSentinelCountsAsArrived(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	f := newFilter(FilterDesc{FilterID: 1})
	require.True(t, f.MayContain(42), "pending filter must not prune")

	f.setFilter(bloomfilter.AlwaysTrueFilter)
	require.True(t, f.HasFilter())
	require.True(t, f.MayContain(42))

	// A second payload is a contract violation.
	require.Panics(t, func() { f.setFilter(bloomfilter.AlwaysTrueFilter) })
}

func TestFilterPruningReflectsPayload(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	bf := bloomfilter.NewBloomFilter(12)
	bf.InsertHash(7)

	f := newFilter(FilterDesc{FilterID: 1})
	require.True(t, f.MayContain(8), "pending filter must not prune")

	f.setFilter(bf)
	require.True(t, f.MayContain(7))
	require.False(t, f.MayContain(8))
}
