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

	"github.com/barnacledb/barnacle/pkg/util/bloomfilter"
	"github.com/barnacledb/barnacle/pkg/util/uuid"
)

// FilterID identifies one runtime filter within a query. IDs are assigned
// at plan time and are unique across the plan, shared between the filter's
// producer and its consumers.
type FilterID uint32

// FilterDesc is the immutable plan-time metadata of one runtime filter.
type FilterDesc struct {
	FilterID FilterID

	// HasLocalTarget is set when the filter's only consumer runs on the
	// same node as its producer. Such filters are handed over directly and
	// never travel through the coordinator.
	HasLocalTarget bool
}

// QueryID identifies a query across the cluster.
type QueryID struct {
	uuid.UUID
}

// MakeQueryID returns a new random QueryID.
func MakeQueryID() QueryID {
	return QueryID{UUID: uuid.MakeV4()}
}

// Short returns an abbreviated form of the id, used as a log tag.
func (q QueryID) Short() string {
	return q.String()[:8]
}

// Mode controls how runtime filters propagate for a query.
type Mode int32

const (
	// ModeOff disables runtime filters entirely.
	ModeOff Mode = iota
	// ModeLocalOnly propagates filters only between co-located producer and
	// consumer pairs; nothing crosses node boundaries.
	ModeLocalOnly
	// ModeGlobal aggregates per-node filters at the coordinator and
	// broadcasts the merged result to every consumer node.
	ModeGlobal
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeLocalOnly:
		return "local"
	case ModeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// WireFilter is the serialized form of a filter payload. Either AlwaysTrue
// is set and the other fields are zero, or Directory holds the encoded
// directory of a filter with capacity exponent LogSize.
type WireFilter struct {
	AlwaysTrue bool
	LogSize    int32
	Directory  []byte
}

// UpdateFilterRequest carries one node's completed filter to the
// coordinator for aggregation.
type UpdateFilterRequest struct {
	QueryID  QueryID
	FilterID FilterID
	Filter   WireFilter
}

// PublishFilterRequest carries an aggregated filter from the coordinator
// down to a consumer node.
type PublishFilterRequest struct {
	FilterID FilterID
	Filter   WireFilter
}

// FilterSender ships producer updates to the coordinator. Implementations
// wrap the node's RPC layer; the bank only observes errors to log them.
type FilterSender interface {
	SendFilterUpdate(ctx context.Context, coordinator string, req *UpdateFilterRequest) error
}

// FilterPublisher pushes aggregated filters from the coordinator to
// consumer nodes.
type FilterPublisher interface {
	PublishFilter(ctx context.Context, target string, req *PublishFilterRequest) error
}

// filterToWire encodes a filter payload for transmission. The always-true
// sentinel, and a nil filter, encode as the AlwaysTrue marker.
func filterToWire(bf *bloomfilter.BloomFilter) WireFilter {
	if bf == nil || bf.IsAlwaysTrue() {
		return WireFilter{AlwaysTrue: true}
	}
	return WireFilter{
		LogSize:   bf.LogHeapBytes(),
		Directory: bf.MarshalDirectory(),
	}
}
