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

package metric

import (
	"reflect"

	"github.com/barnacledb/barnacle/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
	prometheusgo "github.com/prometheus/client_model/go"
)

// A Registry is a list of metrics. It provides a simple way of iterating
// over them and can marshal into the Prometheus format.
//
// A registry can have label pairs that will be applied to all its metrics
// when exported.
type Registry struct {
	syncutil.Mutex
	tracked map[string]Iterable
}

// NewRegistry creates a new Registry.
func NewRegistry() *Registry {
	return &Registry{
		tracked: map[string]Iterable{},
	}
}

// AddMetric adds the given metric to the registry.
func (r *Registry) AddMetric(metric Iterable) {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.tracked[metric.GetName()]; ok {
		panic(errors.AssertionFailedf("metric already registered: %s", metric.GetName()))
	}
	r.tracked[metric.GetName()] = metric
}

// AddMetricStruct examines all fields of metricStruct and adds all Iterable
// or Struct objects to the registry.
func (r *Registry) AddMetricStruct(metricStruct Struct) {
	v := reflect.ValueOf(metricStruct)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	for i := 0; i < v.NumField(); i++ {
		vfield := v.Field(i)
		if !vfield.CanInterface() {
			continue
		}
		val := vfield.Interface()
		switch typ := val.(type) {
		case Iterable:
			r.AddMetric(typ)
		case Struct:
			r.AddMetricStruct(typ)
		}
	}
}

// Each calls the given closure for all metrics.
func (r *Registry) Each(f func(name string, val *prometheusgo.Metric)) {
	r.Lock()
	defer r.Unlock()
	for _, metric := range r.tracked {
		metric.Inspect(func(v interface{}) {
			if prom, ok := v.(PrometheusExportable); ok {
				f(prom.GetName(), prom.ToPrometheusMetric())
			}
		})
	}
}

// MarshalFamilies exports all registered metrics as Prometheus metric
// families, suitable for the expfmt encoders.
func (r *Registry) MarshalFamilies() []*prometheusgo.MetricFamily {
	r.Lock()
	defer r.Unlock()
	families := make([]*prometheusgo.MetricFamily, 0, len(r.tracked))
	for _, metric := range r.tracked {
		metric.Inspect(func(v interface{}) {
			prom, ok := v.(PrometheusExportable)
			if !ok {
				return
			}
			name := prom.GetName()
			help := prom.GetHelp()
			families = append(families, &prometheusgo.MetricFamily{
				Name:   &name,
				Help:   &help,
				Type:   prom.GetType(),
				Metric: []*prometheusgo.Metric{prom.ToPrometheusMetric()},
			})
		})
	}
	return families
}
