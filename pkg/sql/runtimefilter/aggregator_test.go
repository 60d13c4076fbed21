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
	"math"
	"testing"
	"time"

	"github.com/barnacledb/barnacle/pkg/sql/mon"
	"github.com/barnacledb/barnacle/pkg/testutils"
	"github.com/barnacledb/barnacle/pkg/util/bloomfilter"
	"github.com/barnacledb/barnacle/pkg/util/leaktest"
	"github.com/barnacledb/barnacle/pkg/util/log"
	"github.com/barnacledb/barnacle/pkg/util/stop"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	target string
	req    *PublishFilterRequest
}

// mockPublisher feeds published filters into a channel.
type mockPublisher struct {
	calls chan publishCall
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{calls: make(chan publishCall, 16)}
}

func (p *mockPublisher) PublishFilter(
	ctx context.Context, target string, req *PublishFilterRequest,
) error {
	p.calls <- publishCall{target: target, req: req}
	return nil
}

// testAggregator wires an Aggregator to in-memory dependencies.
type testAggregator struct {
	*Aggregator
	stopper   *stop.Stopper
	mon       *mon.BytesMonitor
	publisher *mockPublisher
	queryID   QueryID
}

func newTestAggregator(t *testing.T, budget int64, routes []RouteSpec) *testAggregator {
	ta := &testAggregator{
		stopper:   stop.NewStopper(),
		mon:       mon.NewMonitor("agg-test", budget),
		publisher: newMockPublisher(),
		queryID:   MakeQueryID(),
	}
	ta.Aggregator = NewAggregator(context.Background(), AggregatorConfig{
		Stopper:   ta.stopper,
		Publisher: ta.publisher,
		Mon:       ta.mon,
		QueryID:   ta.queryID,
	}, routes)
	return ta
}

func (ta *testAggregator) close(ctx context.Context, t *testing.T) {
	ta.Aggregator.Close(ctx)
	ta.stopper.Stop(ctx)
	require.Equal(t, int64(0), ta.mon.AllocBytes())
	ta.mon.Stop(ctx)
}

// update builds an UpdateFilterRequest for the aggregator's query.
func (ta *testAggregator) update(id FilterID, bf *bloomfilter.BloomFilter) *UpdateFilterRequest {
	return &UpdateFilterRequest{QueryID: ta.queryID, FilterID: id, Filter: filterToWire(bf)}
}

func TestAggregatorMergesAndBroadcasts(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	ta := newTestAggregator(t, math.MaxInt64, []RouteSpec{
		{FilterID: 3, PendingProducers: 2, Targets: []string{"n2", "n3"}},
	})
	defer ta.close(ctx, t)

	a := bloomfilter.NewBloomFilter(12)
	b := bloomfilter.NewBloomFilter(12)
	ha := xxhash.Sum64String("from node a")
	hb := xxhash.Sum64String("from node b")
	a.InsertHash(ha)
	b.InsertHash(hb)

	ta.HandleFilterUpdate(ctx, ta.update(3, a))
	require.Equal(t, a.HeapBytes(), ta.mon.AllocBytes())

	ta.HandleFilterUpdate(ctx, ta.update(3, b))

	// Both targets receive the same merged result.
	first := <-ta.publisher.calls
	second := <-ta.publisher.calls
	require.Same(t, first.req, second.req)
	require.ElementsMatch(t, []string{"n2", "n3"}, []string{first.target, second.target})

	require.Equal(t, FilterID(3), first.req.FilterID)
	require.False(t, first.req.Filter.AlwaysTrue)
	merged, err := bloomfilter.FromDirectory(first.req.Filter.LogSize, first.req.Filter.Directory)
	require.NoError(t, err)
	require.True(t, merged.MayContainHash(ha))
	require.True(t, merged.MayContainHash(hb))
	require.False(t, merged.MayContainHash(xxhash.Sum64String("never inserted")))
}

func TestAggregatorDisablesOnAlwaysTrue(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	ta := newTestAggregator(t, math.MaxInt64, []RouteSpec{
		{FilterID: 1, PendingProducers: 2, Targets: []string{"n2"}},
	})
	defer ta.close(ctx, t)

	bf := bloomfilter.NewBloomFilter(12)
	bf.InsertHash(1)
	ta.HandleFilterUpdate(ctx, ta.update(1, bf))
	require.Equal(t, bf.HeapBytes(), ta.mon.AllocBytes())

	// One disabled producer poisons the merge; the partial result is
	// released immediately.
	ta.HandleFilterUpdate(ctx, ta.update(1, bloomfilter.AlwaysTrueFilter))
	require.Equal(t, int64(0), ta.mon.AllocBytes())

	call := <-ta.publisher.calls
	require.True(t, call.req.Filter.AlwaysTrue)
}

func TestAggregatorDisablesOnSizeMismatch(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	ta := newTestAggregator(t, math.MaxInt64, []RouteSpec{
		{FilterID: 1, PendingProducers: 2, Targets: []string{"n2"}},
	})
	defer ta.close(ctx, t)

	ta.HandleFilterUpdate(ctx, ta.update(1, bloomfilter.NewBloomFilter(12)))
	ta.HandleFilterUpdate(ctx, ta.update(1, bloomfilter.NewBloomFilter(13)))

	call := <-ta.publisher.calls
	require.True(t, call.req.Filter.AlwaysTrue)
	require.Equal(t, int64(0), ta.mon.AllocBytes())
}

func TestAggregatorDisablesWithoutBudget(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	ta := newTestAggregator(t, 0 /* budget */, []RouteSpec{
		{FilterID: 1, PendingProducers: 1, Targets: []string{"n2"}},
	})
	defer ta.close(ctx, t)

	ta.HandleFilterUpdate(ctx, ta.update(1, bloomfilter.NewBloomFilter(12)))

	call := <-ta.publisher.calls
	require.True(t, call.req.Filter.AlwaysTrue)
	require.Equal(t, int64(0), ta.mon.AllocBytes())
}

func TestAggregatorDropsStrayUpdates(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	ta := newTestAggregator(t, math.MaxInt64, []RouteSpec{
		{FilterID: 1, PendingProducers: 1, Targets: []string{"n2"}},
	})
	defer ta.close(ctx, t)

	bf := bloomfilter.NewBloomFilter(12)

	// An update for some other query must not touch this aggregation.
	foreign := ta.update(1, bf)
	foreign.QueryID = MakeQueryID()
	ta.HandleFilterUpdate(ctx, foreign)

	// Neither must an update for a filter id the plan never declared.
	ta.HandleFilterUpdate(ctx, ta.update(99, bf))
	require.Equal(t, int64(0), ta.mon.AllocBytes())

	ta.HandleFilterUpdate(ctx, ta.update(1, bf))
	<-ta.publisher.calls

	// Late duplicates after completion are dropped rather than re-published.
	ta.HandleFilterUpdate(ctx, ta.update(1, bf))
	select {
	case call := <-ta.publisher.calls:
		t.Fatalf("unexpected second publication: %+v", call)
	case <-time.After(10 * time.Millisecond):
	}
}

// failingPublisher fails every publish.
type failingPublisher struct {
	calls chan string
}

func (p *failingPublisher) PublishFilter(
	ctx context.Context, target string, req *PublishFilterRequest,
) error {
	p.calls <- target
	return errors.New("connection refused")
}

func TestAggregatorToleratesPublishFailures(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	publisher := &failingPublisher{calls: make(chan string, 2)}
	stopper := stop.NewStopper()
	defer stopper.Stop(ctx)
	m := mon.NewMonitor("agg-test", math.MaxInt64)
	queryID := MakeQueryID()
	a := NewAggregator(ctx, AggregatorConfig{
		Stopper:   stopper,
		Publisher: publisher,
		Mon:       m,
		QueryID:   queryID,
	}, []RouteSpec{{FilterID: 1, PendingProducers: 1, Targets: []string{"n2", "n3"}}})
	defer func() {
		a.Close(ctx)
		m.Stop(ctx)
	}()

	a.HandleFilterUpdate(ctx, &UpdateFilterRequest{
		QueryID: queryID, FilterID: 1, Filter: WireFilter{AlwaysTrue: true},
	})

	// Every target is still attempted; the errors are logged and dropped.
	targets := []string{<-publisher.calls, <-publisher.calls}
	require.ElementsMatch(t, []string{"n2", "n3"}, targets)
}

// TestGlobalPropagation runs the whole pipeline in-process: a producer bank
// dispatches its completed filter to an aggregator, which merges and
// publishes to a consumer bank, whose waiting consumer observes it.
func TestGlobalPropagation(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	stopper := stop.NewStopper()
	defer stopper.Stop(ctx)
	m := mon.NewMonitor("e2e-test", math.MaxInt64)
	queryID := MakeQueryID()
	metrics := MakeMetrics()

	// Consumer-side bank on the probe node.
	consumerBank := NewBank(ctx, Config{
		Stopper: stopper,
		Sender:  &mockSender{},
		Metrics: &metrics,
		Mon:     m,
		QueryID: queryID,
	}, Options{Mode: ModeGlobal, FilterSizeBytes: MinFilterSize})
	defer consumerBank.Close(ctx)
	consumer := consumerBank.RegisterFilter(FilterDesc{FilterID: 5}, false /* isProducer */)

	// Coordinator-side aggregator expecting one producer, publishing into
	// the consumer bank.
	agg := NewAggregator(ctx, AggregatorConfig{
		Stopper:   stopper,
		Publisher: bankPublisher{bank: consumerBank},
		Mon:       m,
		QueryID:   queryID,
	}, []RouteSpec{{FilterID: 5, PendingProducers: 1, Targets: []string{"probe-node"}}})
	defer agg.Close(ctx)

	// Producer-side bank on the build node, sending into the aggregator.
	producerBank := NewBank(ctx, Config{
		Stopper:     stopper,
		Sender:      aggregatorSender{agg: agg},
		Metrics:     &metrics,
		Mon:         m,
		QueryID:     queryID,
		Coordinator: "coordinator",
	}, Options{Mode: ModeGlobal, FilterSizeBytes: MinFilterSize})
	defer producerBank.Close(ctx)
	producerBank.RegisterFilter(FilterDesc{FilterID: 5}, true /* isProducer */)

	builder := NewFilterBuilder(ctx, producerBank, 5)
	require.False(t, builder.Disabled())
	builder.Add([]byte("apple"))
	builder.Add([]byte("banana"))
	builder.Finish(ctx)

	require.True(t, consumer.WaitForArrival(testutils.DefaultSucceedsSoonDuration))
	require.True(t, consumer.MayContain(xxhash.Sum64String("apple")))
	require.True(t, consumer.MayContain(xxhash.Sum64String("banana")))
	require.False(t, consumer.MayContain(xxhash.Sum64String("cherry")))

	consumerBank.Close(ctx)
	producerBank.Close(ctx)
	agg.Close(ctx)
	testutils.SucceedsSoon(t, func() error {
		if n := m.AllocBytes(); n != 0 {
			return errors.Newf("%d bytes still allocated", n)
		}
		return nil
	})
	m.Stop(ctx)
}

// aggregatorSender feeds producer updates straight into an Aggregator.
type aggregatorSender struct {
	agg *Aggregator
}

func (s aggregatorSender) SendFilterUpdate(
	ctx context.Context, coordinator string, req *UpdateFilterRequest,
) error {
	s.agg.HandleFilterUpdate(ctx, req)
	return nil
}

// bankPublisher feeds published filters straight into a consumer Bank.
type bankPublisher struct {
	bank *Bank
}

func (p bankPublisher) PublishFilter(
	ctx context.Context, target string, req *PublishFilterRequest,
) error {
	p.bank.PublishGlobalFilter(ctx, req)
	return nil
}
