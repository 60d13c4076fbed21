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

// Package metric provides server metrics: cheap, thread-safe counters,
// gauges and histograms that can be exported in the Prometheus data model.
package metric

import (
	"sync/atomic"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/prometheus/client_golang/prometheus"
	prometheusgo "github.com/prometheus/client_model/go"
)

// Unit describes how the metric's value should be interpreted.
type Unit int

// Supported metric units.
const (
	Unit_COUNT Unit = iota
	Unit_BYTES
	Unit_NANOSECONDS
	Unit_PERCENT
)

// Metadata holds metadata about a metric. It must be embedded in each metric
// object. It is used to export information about the metric to Prometheus and
// the admin UI.
type Metadata struct {
	Name        string
	Help        string
	Measurement string
	Unit        Unit
}

// GetName returns the metric's name.
func (m Metadata) GetName() string { return m.Name }

// GetHelp returns the metric's help string.
func (m Metadata) GetHelp() string { return m.Help }

// GetMeasurement returns the metric's measurement.
func (m Metadata) GetMeasurement() string { return m.Measurement }

// GetUnit returns the metric's unit.
func (m Metadata) GetUnit() Unit { return m.Unit }

// Iterable provides a method for synchronized access to interior objects.
type Iterable interface {
	// GetName returns the fully-qualified name of the metric.
	GetName() string
	// GetHelp returns the help text for the metric.
	GetHelp() string
	// Inspect calls the given closure with the empty string and the metric
	// itself.
	Inspect(func(interface{}))
}

// PrometheusExportable is implemented by all metrics that can be exported in
// the Prometheus data model.
type PrometheusExportable interface {
	GetName() string
	GetHelp() string
	// GetType returns the Prometheus type enum for this metric.
	GetType() *prometheusgo.MetricType
	// ToPrometheusMetric returns a filled-in Prometheus metric of the
	// right type.
	ToPrometheusMetric() *prometheusgo.Metric
}

// Struct is implemented by metric container structs so that they can be
// registered with a Registry via AddMetricStruct.
type Struct interface {
	MetricStruct()
}

// A Counter holds a single mutable atomic value. It can only go up.
type Counter struct {
	Metadata
	count int64
}

var _ Iterable = (*Counter)(nil)
var _ PrometheusExportable = (*Counter)(nil)

// NewCounter creates a counter.
func NewCounter(metadata Metadata) *Counter {
	return &Counter{Metadata: metadata}
}

// Inc atomically increments the counter by i. A negative i is a no-op.
func (c *Counter) Inc(i int64) {
	if i < 0 {
		return
	}
	atomic.AddInt64(&c.count, i)
}

// Count returns the current value of the counter.
func (c *Counter) Count() int64 {
	return atomic.LoadInt64(&c.count)
}

// Inspect implements Iterable.
func (c *Counter) Inspect(f func(interface{})) { f(c) }

// GetType implements PrometheusExportable.
func (c *Counter) GetType() *prometheusgo.MetricType {
	return prometheusgo.MetricType_COUNTER.Enum()
}

// ToPrometheusMetric implements PrometheusExportable.
func (c *Counter) ToPrometheusMetric() *prometheusgo.Metric {
	return &prometheusgo.Metric{
		Counter: &prometheusgo.Counter{Value: proto.Float64(float64(c.Count()))},
	}
}

// A Gauge atomically stores a single integer value that can go up and down.
type Gauge struct {
	Metadata
	value int64
}

var _ Iterable = (*Gauge)(nil)
var _ PrometheusExportable = (*Gauge)(nil)

// NewGauge creates a Gauge.
func NewGauge(metadata Metadata) *Gauge {
	return &Gauge{Metadata: metadata}
}

// Update updates the gauge's value.
func (g *Gauge) Update(v int64) {
	atomic.StoreInt64(&g.value, v)
}

// Inc increments the gauge's value by i.
func (g *Gauge) Inc(i int64) {
	atomic.AddInt64(&g.value, i)
}

// Dec decrements the gauge's value by i.
func (g *Gauge) Dec(i int64) {
	atomic.AddInt64(&g.value, -i)
}

// Value returns the gauge's current value.
func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

// Inspect implements Iterable.
func (g *Gauge) Inspect(f func(interface{})) { f(g) }

// GetType implements PrometheusExportable.
func (g *Gauge) GetType() *prometheusgo.MetricType {
	return prometheusgo.MetricType_GAUGE.Enum()
}

// ToPrometheusMetric implements PrometheusExportable.
func (g *Gauge) ToPrometheusMetric() *prometheusgo.Metric {
	return &prometheusgo.Metric{
		Gauge: &prometheusgo.Gauge{Value: proto.Float64(float64(g.Value()))},
	}
}

// HistogramOptions configures a Histogram.
type HistogramOptions struct {
	Metadata Metadata
	// Buckets are the histogram bucket boundaries, as for the Prometheus
	// client library.
	Buckets []float64
}

// A Histogram records samples into a Prometheus histogram with fixed
// buckets. Recorded values are expected in the unit named by the metadata
// (e.g. nanoseconds for latencies).
type Histogram struct {
	Metadata
	cum prometheus.Histogram
}

var _ Iterable = (*Histogram)(nil)
var _ PrometheusExportable = (*Histogram)(nil)

// NewHistogram creates a Histogram.
func NewHistogram(opts HistogramOptions) *Histogram {
	return &Histogram{
		Metadata: opts.Metadata,
		cum: prometheus.NewHistogram(prometheus.HistogramOpts{
			Buckets: opts.Buckets,
		}),
	}
}

// NewLatencyHistogram creates a Histogram with buckets suitable for
// latencies recorded in nanoseconds.
func NewLatencyHistogram(metadata Metadata) *Histogram {
	return NewHistogram(HistogramOptions{
		Metadata: metadata,
		Buckets:  LatencyBuckets,
	})
}

// RecordValue adds the given value to the histogram.
func (h *Histogram) RecordValue(n int64) {
	h.cum.Observe(float64(n))
}

// TotalCount returns the number of recorded samples.
func (h *Histogram) TotalCount() int64 {
	return int64(h.ToPrometheusMetric().Histogram.GetSampleCount())
}

// TotalSum returns the sum of all recorded samples.
func (h *Histogram) TotalSum() float64 {
	return h.ToPrometheusMetric().Histogram.GetSampleSum()
}

// Inspect implements Iterable.
func (h *Histogram) Inspect(f func(interface{})) { f(h) }

// GetType implements PrometheusExportable.
func (h *Histogram) GetType() *prometheusgo.MetricType {
	return prometheusgo.MetricType_HISTOGRAM.Enum()
}

// ToPrometheusMetric implements PrometheusExportable.
func (h *Histogram) ToPrometheusMetric() *prometheusgo.Metric {
	m := &prometheusgo.Metric{}
	if err := h.cum.Write(m); err != nil {
		panic(err)
	}
	return m
}

// LatencyBuckets covers latencies from 100µs to 100s, in nanoseconds.
var LatencyBuckets = prometheus.ExponentialBucketsRange(
	float64(100*time.Microsecond), float64(100*time.Second), 30,
)

// MemoryUsageBuckets covers allocation sizes from 1KiB to 16GiB, in bytes.
var MemoryUsageBuckets = prometheus.ExponentialBucketsRange(1024, 16<<30, 25)
