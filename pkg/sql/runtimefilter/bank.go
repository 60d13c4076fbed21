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

// Package runtimefilter coordinates the construction and distribution of
// runtime filters during distributed query execution.
//
// While executing a join, the build side summarizes the join keys it has
// seen into a fixed-size Bloom filter. That summary is shipped to the probe
// side, which uses it to discard non-matching rows before they reach scans,
// joins and shuffles. This package manages everything around the filter
// payload itself: the per-query Bank that owns filter slots and their
// memory, the same-node short-circuit and coordinator aggregation delivery
// paths, and the consumer-side wait protocol.
//
// A runtime filter is never required for correctness. Every failure mode
// (memory pressure, transport errors, slow aggregation) degrades to "no
// pruning": the consumer either times out waiting or receives the shared
// always-true sentinel, and the query proceeds.
package runtimefilter

import (
	"context"
	"math/bits"
	"time"

	"github.com/barnacledb/barnacle/pkg/settings"
	"github.com/barnacledb/barnacle/pkg/sql/mon"
	"github.com/barnacledb/barnacle/pkg/util/bloomfilter"
	"github.com/barnacledb/barnacle/pkg/util/humanizeutil"
	"github.com/barnacledb/barnacle/pkg/util/log"
	"github.com/barnacledb/barnacle/pkg/util/stop"
	"github.com/barnacledb/barnacle/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
)

const (
	// MinFilterSize and MaxFilterSize bound the per-filter directory size.
	// Queries requesting sizes outside this range are clamped into it.
	MinFilterSize = 4 << 10
	MaxFilterSize = 16 << 20

	// DefaultFilterSize is used when a query does not configure a size.
	DefaultFilterSize = 1 << 20
)

var maxErrorRate = settings.RegisterFloatSetting(
	"sql.distsql.runtime_filter.max_error_rate",
	"expected false-positive rate above which a runtime filter is disabled instead of built",
	0.75,
)

// Config groups the per-node dependencies of a Bank.
type Config struct {
	AmbientCtx log.AmbientContext
	Stopper    *stop.Stopper
	Sender     FilterSender
	Metrics    *Metrics

	// Mon is the query's memory monitor; all filter directories are
	// reserved against it.
	Mon *mon.BytesMonitor

	QueryID QueryID

	// Coordinator is the address completed filters are sent to for
	// aggregation in ModeGlobal.
	Coordinator string

	Knobs TestingKnobs
}

// Options are the per-query filter parameters from the query plan.
type Options struct {
	Mode Mode

	// FilterSizeBytes is the requested directory size for every filter of
	// the query. It is clamped to [MinFilterSize, MaxFilterSize] and
	// rounded up to a power of two, so that all of the query's filters stay
	// mergeable without per-filter negotiation.
	FilterSizeBytes int64
}

// TestingKnobs are testing hooks for the bank.
type TestingKnobs struct {
	// DispatchedFilterUpdate, if set, is invoked from the async dispatch
	// task after the send attempt for req completes.
	DispatchedFilterUpdate func(req *UpdateFilterRequest)
}

// Bank owns all runtime filter state for one query on one node: the filter
// slots registered at plan setup, the memory charged for filter
// directories, and the routing of completed filters to their consumers.
//
// Build-side operator goroutines and the RPC goroutines delivering
// coordinator pushes use one shared Bank concurrently. A single mutex
// serializes map and accounting updates; it is never held across a send.
type Bank struct {
	log.AmbientContext

	queryID       QueryID
	mode          Mode
	logFilterSize int32
	stopper       *stop.Stopper
	sender        FilterSender
	coordinator   string
	metrics       *Metrics
	knobs         TestingKnobs
	everySendErr  log.EveryN

	mu struct {
		syncutil.Mutex
		produced map[FilterID]*Filter
		consumed map[FilterID]*Filter
		acc      mon.BoundAccount
		closed   bool
	}
}

// NewBank creates the filter bank for one query.
func NewBank(ctx context.Context, cfg Config, opts Options) *Bank {
	size := opts.FilterSizeBytes
	if size == 0 {
		size = DefaultFilterSize
	}
	if size < MinFilterSize {
		size = MinFilterSize
	}
	if size > MaxFilterSize {
		size = MaxFilterSize
	}
	b := &Bank{
		AmbientContext: cfg.AmbientCtx,
		queryID:        cfg.QueryID,
		mode:           opts.Mode,
		logFilterSize:  int32(bits.Len64(uint64(size) - 1)),
		stopper:        cfg.Stopper,
		sender:         cfg.Sender,
		coordinator:    cfg.Coordinator,
		metrics:        cfg.Metrics,
		knobs:          cfg.Knobs,
		everySendErr:   log.Every(10 * time.Second),
	}
	b.AddLogTag("query", cfg.QueryID.Short())
	b.mu.produced = make(map[FilterID]*Filter)
	b.mu.consumed = make(map[FilterID]*Filter)
	b.mu.acc = cfg.Mon.MakeBoundAccount()
	log.VEventf(b.AnnotateCtx(ctx), 2, "filter bank initialized: mode=%s, filter size %s",
		b.mode, humanizeutil.IBytes(int64(1)<<b.logFilterSize))
	return b
}

// LogFilterSize returns the capacity exponent used for every filter this
// bank allocates.
func (b *Bank) LogFilterSize() int32 {
	return b.logFilterSize
}

// RegisterFilter creates the slot for one filter id in the produced or
// consumed map per the caller's role. A locally targeted filter is
// registered twice, once per role, by its co-located producer and consumer
// operators. Registration happens at plan setup, before execution starts;
// registering an id twice in the same role is a contract violation.
func (b *Bank) RegisterFilter(desc FilterDesc, isProducer bool) *Filter {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.mu.consumed
	if isProducer {
		m = b.mu.produced
	}
	if _, ok := m[desc.FilterID]; ok {
		panic(errors.AssertionFailedf("filter %d registered twice", desc.FilterID))
	}
	f := newFilter(desc)
	m[desc.FilterID] = f
	b.metrics.FiltersCreated.Inc(1)
	return f
}

// AllocateScratchFilter returns an empty filter for a build-side operator
// to populate, charging its directory to the query's memory budget. It
// returns nil when the budget is exhausted or the bank is closed; the
// caller must then skip building the filter rather than fail the query.
func (b *Bank) AllocateScratchFilter(ctx context.Context) *bloomfilter.BloomFilter {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mu.closed {
		return nil
	}
	size := bloomfilter.ExpectedHeapBytes(b.logFilterSize)
	if err := b.mu.acc.Grow(ctx, size); err != nil {
		log.VEventf(b.AnnotateCtx(ctx), 1, "declining scratch filter: %v", err)
		return nil
	}
	b.metrics.FilterBytes.Inc(size)
	return bloomfilter.NewBloomFilter(b.logFilterSize)
}

// UpdateFilterFromLocal is called exactly once by the build-side operator
// owning filterID when its filter is complete. A locally targeted filter is
// handed to the co-located consumer directly, same instance, no copy.
// Otherwise, in ModeGlobal, a serialized copy is dispatched to the
// coordinator; the send is asynchronous and its failures are logged and
// dropped, never surfaced to the caller. Calling this for an unregistered
// id, or with filters disabled, is a contract violation.
func (b *Bank) UpdateFilterFromLocal(
	ctx context.Context, filterID FilterID, bf *bloomfilter.BloomFilter,
) {
	if b.mode == ModeOff {
		panic(errors.AssertionFailedf("filter update while runtime filters are disabled"))
	}
	ctx = b.AnnotateCtx(ctx)

	b.mu.Lock()
	if b.mu.closed {
		b.mu.Unlock()
		return
	}
	producer, registered := b.mu.produced[filterID]
	var consumer *Filter
	if registered {
		producer.setFilter(bf)
		if producer.desc.HasLocalTarget {
			consumer = b.mu.consumed[filterID]
		}
	}
	b.mu.Unlock()
	if !registered {
		panic(errors.AssertionFailedf("update for unregistered filter %d", filterID))
	}

	if producer.desc.HasLocalTarget {
		if consumer == nil {
			return
		}
		consumer.setFilter(bf)
		b.recordArrival(ctx, consumer)
		return
	}

	if b.mode != ModeGlobal {
		return
	}
	// Serialize and dispatch outside the lock; a slow coordinator must not
	// stall other filter work on this query.
	b.dispatchFilterUpdate(ctx, &UpdateFilterRequest{
		QueryID:  b.queryID,
		FilterID: filterID,
		Filter:   filterToWire(bf),
	})
}

// dispatchFilterUpdate hands req to the stopper's async pool. The send runs
// under a context detached from the caller: the update outlives the
// operator that produced it.
func (b *Bank) dispatchFilterUpdate(ctx context.Context, req *UpdateFilterRequest) {
	sendCtx := b.AnnotateCtx(context.Background())
	err := b.stopper.RunAsyncTask(sendCtx, "send-filter-update", func(ctx context.Context) {
		if err := b.sender.SendFilterUpdate(ctx, b.coordinator, req); err != nil {
			// Losing an update only costs the consumers their pruning; the
			// remote fragments continue regardless.
			if b.everySendErr.ShouldLog() {
				log.Warningf(ctx, "failed to send update for filter %d to %s: %v",
					req.FilterID, b.coordinator, err)
			}
		}
		if fn := b.knobs.DispatchedFilterUpdate; fn != nil {
			fn(req)
		}
	})
	if err != nil {
		log.Warningf(ctx, "dropping update for filter %d: %v", req.FilterID, err)
	}
}

// PublishGlobalFilter installs an aggregated filter pushed by the
// coordinator into the consumer registered for req.FilterID. A payload that
// cannot be used (always-true marker, malformed encoding, denied memory
// reservation) installs the shared always-true sentinel instead: the
// consumer stops waiting but prunes nothing. No-op once the bank is closed.
func (b *Bank) PublishGlobalFilter(ctx context.Context, req *PublishFilterRequest) {
	ctx = b.AnnotateCtx(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mu.closed {
		return
	}
	consumer, ok := b.mu.consumed[req.FilterID]
	if !ok {
		panic(errors.AssertionFailedf("published filter %d was never registered", req.FilterID))
	}
	bf := bloomfilter.AlwaysTrueFilter
	if !req.Filter.AlwaysTrue {
		if real, ok := b.decodePublishedLocked(ctx, req); ok {
			bf = real
		}
	}
	consumer.setFilter(bf)
	b.recordArrival(ctx, consumer)
}

// decodePublishedLocked reserves memory for and decodes a published filter
// body, returning false when the sentinel should be installed instead.
func (b *Bank) decodePublishedLocked(
	ctx context.Context, req *PublishFilterRequest,
) (*bloomfilter.BloomFilter, bool) {
	wf := &req.Filter
	if wf.LogSize < 1 || wf.LogSize > bloomfilter.MaxLogHeapBytes || len(wf.Directory) == 0 {
		log.Errorf(ctx, "malformed published filter %d: capacity exponent %d, %d directory bytes",
			req.FilterID, wf.LogSize, len(wf.Directory))
		return nil, false
	}
	size := bloomfilter.ExpectedHeapBytes(wf.LogSize)
	if err := b.mu.acc.Grow(ctx, size); err != nil {
		log.Warningf(ctx, "no memory for global filter %d (%s): %v",
			req.FilterID, humanizeutil.IBytes(size), err)
		return nil, false
	}
	bf, err := bloomfilter.FromDirectory(wf.LogSize, wf.Directory)
	if err != nil {
		b.mu.acc.Shrink(ctx, size)
		log.Errorf(ctx, "malformed published filter %d: %v", req.FilterID, err)
		return nil, false
	}
	if bf.HeapBytes() != size {
		panic(errors.AssertionFailedf(
			"filter %d occupies %d heap bytes, reserved %d", req.FilterID, bf.HeapBytes(), size))
	}
	b.metrics.FilterBytes.Inc(size)
	return bf, true
}

// recordArrival bumps the arrival metrics for a consumer filter that just
// received its payload.
func (b *Bank) recordArrival(ctx context.Context, f *Filter) {
	delay := f.ArrivalDelay()
	b.metrics.FiltersArrived.Inc(1)
	b.metrics.ArrivalLatency.RecordValue(int64(delay))
	log.VEventf(ctx, 2, "filter %d arrived after %s",
		f.desc.FilterID, humanizeutil.Duration(delay))
}

// ShouldDisableFilter recommends skipping a filter whose expected
// false-positive rate at this bank's capacity, given an upper bound on the
// distinct join keys, is too high for the filter to pay for itself. It is a
// pure cost estimate; acting on it is the caller's responsibility.
func (b *Bank) ShouldDisableFilter(maxDistinct int64) bool {
	return bloomfilter.FalsePositiveProb(maxDistinct, b.logFilterSize) > maxErrorRate.Get()
}

// Close drops every filter slot and releases the bank's accumulated memory
// reservation in one shot. Close is idempotent, and all bank operations
// after it are no-ops.
func (b *Bank) Close(ctx context.Context) {
	ctx = b.AnnotateCtx(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mu.closed {
		return
	}
	b.mu.closed = true
	b.mu.produced = nil
	b.mu.consumed = nil
	released := b.mu.acc.Used()
	b.mu.acc.Close(ctx)
	b.metrics.FilterBytes.Dec(released)
	log.VEventf(ctx, 1, "filter bank closed, released %s", humanizeutil.IBytes(released))
}
