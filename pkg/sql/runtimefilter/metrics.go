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

import "github.com/barnacledb/barnacle/pkg/util/metric"

var (
	metaFiltersCreated = metric.Metadata{
		Name:        "sql.distsql.runtime_filter.created",
		Help:        "Number of runtime filter slots registered",
		Measurement: "Filters",
		Unit:        metric.Unit_COUNT,
	}
	metaFiltersArrived = metric.Metadata{
		Name:        "sql.distsql.runtime_filter.arrived",
		Help:        "Number of runtime filters that arrived at their consumer",
		Measurement: "Filters",
		Unit:        metric.Unit_COUNT,
	}
	metaFilterBytes = metric.Metadata{
		Name:        "sql.distsql.runtime_filter.bytes",
		Help:        "Memory held by runtime filter directories",
		Measurement: "Memory",
		Unit:        metric.Unit_BYTES,
	}
	metaArrivalLatency = metric.Metadata{
		Name:        "sql.distsql.runtime_filter.arrival_latency",
		Help:        "Time between a runtime filter's registration and the arrival of its payload",
		Measurement: "Latency",
		Unit:        metric.Unit_NANOSECONDS,
	}
)

// Metrics tracks runtime filter behavior across all queries on a node.
type Metrics struct {
	FiltersCreated *metric.Counter
	FiltersArrived *metric.Counter
	FilterBytes    *metric.Gauge
	ArrivalLatency *metric.Histogram
}

// MakeMetrics creates the runtime filter metrics.
func MakeMetrics() Metrics {
	return Metrics{
		FiltersCreated: metric.NewCounter(metaFiltersCreated),
		FiltersArrived: metric.NewCounter(metaFiltersArrived),
		FilterBytes:    metric.NewGauge(metaFilterBytes),
		ArrivalLatency: metric.NewLatencyHistogram(metaArrivalLatency),
	}
}

// MetricStruct implements the metric.Struct interface.
func (Metrics) MetricStruct() {}
