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

	"github.com/barnacledb/barnacle/pkg/sql/mon"
	"github.com/barnacledb/barnacle/pkg/util/bloomfilter"
	"github.com/barnacledb/barnacle/pkg/util/ctxgroup"
	"github.com/barnacledb/barnacle/pkg/util/log"
	"github.com/barnacledb/barnacle/pkg/util/stop"
	"github.com/barnacledb/barnacle/pkg/util/syncutil"
)

// RouteSpec declares one filter the coordinator will aggregate: how many
// producer updates to expect and which nodes consume the merged result.
type RouteSpec struct {
	FilterID         FilterID
	PendingProducers int
	Targets          []string
}

// AggregatorConfig groups the dependencies of an Aggregator.
type AggregatorConfig struct {
	AmbientCtx log.AmbientContext
	Stopper    *stop.Stopper
	Publisher  FilterPublisher
	Mon        *mon.BytesMonitor
	QueryID    QueryID
}

// Aggregator is the coordinator-side counterpart of the per-node Banks for
// one query. It OR-merges the filter updates arriving from build-side
// fragments and, once the last expected producer has reported, broadcasts
// the merged filter to every consumer node.
//
// Updates that cannot be merged (the always-true marker, a size mismatch,
// a denied memory reservation) disable the filter: its consumers receive
// the always-true marker so they stop waiting. Filters of one query all
// share a capacity exponent, so in the absence of bugs every real update
// merges cleanly.
type Aggregator struct {
	log.AmbientContext

	queryID   QueryID
	stopper   *stop.Stopper
	publisher FilterPublisher

	mu struct {
		syncutil.Mutex
		routes map[FilterID]*filterRoute
		acc    mon.BoundAccount
		closed bool
	}
}

// filterRoute is the aggregation state of one filter id.
type filterRoute struct {
	// pending is the number of producer updates still outstanding.
	pending int
	// disabled is set when aggregation gave up on this filter; the
	// broadcast result is then the always-true marker.
	disabled bool
	// merged accumulates the OR of the updates received so far. nil until
	// the first mergeable update arrives, and again after disabling.
	merged *bloomfilter.BloomFilter
	// targets are the consumer nodes awaiting the result.
	targets []string
	// done is set once the result has been handed to the publisher; late
	// updates are dropped.
	done bool
}

// NewAggregator creates the aggregation state for one query from the
// plan's filter routes.
func NewAggregator(ctx context.Context, cfg AggregatorConfig, routes []RouteSpec) *Aggregator {
	a := &Aggregator{
		AmbientContext: cfg.AmbientCtx,
		queryID:        cfg.QueryID,
		stopper:        cfg.Stopper,
		publisher:      cfg.Publisher,
	}
	a.AddLogTag("query", cfg.QueryID.Short())
	a.mu.routes = make(map[FilterID]*filterRoute, len(routes))
	a.mu.acc = cfg.Mon.MakeBoundAccount()
	for _, r := range routes {
		a.mu.routes[r.FilterID] = &filterRoute{
			pending: r.PendingProducers,
			targets: r.Targets,
		}
	}
	log.VEventf(a.AnnotateCtx(ctx), 2, "aggregating %d filters", len(routes))
	return a
}

// HandleFilterUpdate folds one producer update into the filter's pending
// aggregation. The update that completes a filter triggers an asynchronous
// broadcast of the merged result to the filter's consumer nodes. Updates
// for foreign queries, unknown ids, or already-completed filters are
// dropped.
func (a *Aggregator) HandleFilterUpdate(ctx context.Context, req *UpdateFilterRequest) {
	ctx = a.AnnotateCtx(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mu.closed {
		return
	}
	if req.QueryID != a.queryID {
		log.Warningf(ctx, "dropping update for filter %d of foreign query %s",
			req.FilterID, req.QueryID.Short())
		return
	}
	route, ok := a.mu.routes[req.FilterID]
	if !ok || route.done {
		log.VEventf(ctx, 1, "dropping update for unknown or completed filter %d", req.FilterID)
		return
	}
	route.pending--
	a.mergeLocked(ctx, req, route)
	if route.pending > 0 {
		return
	}
	route.done = true
	a.broadcastLocked(ctx, req.FilterID, route)
}

// mergeLocked folds req into route, disabling the route on any update that
// cannot be merged.
func (a *Aggregator) mergeLocked(
	ctx context.Context, req *UpdateFilterRequest, route *filterRoute,
) {
	if route.disabled {
		return
	}
	wf := &req.Filter
	if wf.AlwaysTrue {
		a.disableRouteLocked(ctx, route)
		return
	}
	if route.merged != nil {
		if err := route.merged.OrBytes(wf.Directory); err != nil {
			log.Errorf(ctx, "cannot merge update for filter %d: %v", req.FilterID, err)
			a.disableRouteLocked(ctx, route)
		}
		return
	}
	// First mergeable update: reserve memory and decode it as the merge
	// base. Later updates OR into it in place.
	if wf.LogSize < 1 || wf.LogSize > bloomfilter.MaxLogHeapBytes {
		log.Errorf(ctx, "malformed update for filter %d: capacity exponent %d",
			req.FilterID, wf.LogSize)
		a.disableRouteLocked(ctx, route)
		return
	}
	size := bloomfilter.ExpectedHeapBytes(wf.LogSize)
	if err := a.mu.acc.Grow(ctx, size); err != nil {
		log.Warningf(ctx, "no memory to aggregate filter %d: %v", req.FilterID, err)
		a.disableRouteLocked(ctx, route)
		return
	}
	merged, err := bloomfilter.FromDirectory(wf.LogSize, wf.Directory)
	if err != nil {
		a.mu.acc.Shrink(ctx, size)
		log.Errorf(ctx, "malformed update for filter %d: %v", req.FilterID, err)
		a.disableRouteLocked(ctx, route)
		return
	}
	route.merged = merged
}

// disableRouteLocked abandons aggregation for a route, releasing any
// partially merged filter. The route's consumers will receive the
// always-true marker.
func (a *Aggregator) disableRouteLocked(ctx context.Context, route *filterRoute) {
	route.disabled = true
	if route.merged != nil {
		a.mu.acc.Shrink(ctx, route.merged.HeapBytes())
		route.merged = nil
	}
}

// broadcastLocked snapshots the route's result and fans it out to the
// route's targets from an async task. Publish failures are logged and
// dropped: an undelivered filter costs the target node its pruning, never
// the query.
func (a *Aggregator) broadcastLocked(ctx context.Context, id FilterID, route *filterRoute) {
	req := &PublishFilterRequest{FilterID: id, Filter: filterToWire(route.merged)}
	targets := route.targets
	bgCtx := a.AnnotateCtx(context.Background())
	err := a.stopper.RunAsyncTask(bgCtx, "publish-filter", func(ctx context.Context) {
		_ = ctxgroup.GroupWorkers(ctx, len(targets), func(ctx context.Context, i int) error {
			if err := a.publisher.PublishFilter(ctx, targets[i], req); err != nil {
				log.Warningf(ctx, "failed to publish filter %d to %s: %v", id, targets[i], err)
			}
			return nil
		})
	})
	if err != nil {
		log.Warningf(ctx, "dropping publication of filter %d: %v", id, err)
	}
}

// Close drops all routes and releases the aggregator's memory reservation.
// In-flight publications hold their own serialized copies and are
// unaffected.
func (a *Aggregator) Close(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mu.closed {
		return
	}
	a.mu.closed = true
	a.mu.routes = nil
	a.mu.acc.Close(a.AnnotateCtx(ctx))
}
