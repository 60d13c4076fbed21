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

// Package settings provides a central registry of runtime editable settings
// and accompanying helper functions for retrieving their current values.
//
// Settings values are stored in the system tree and distributed to every
// node of the cluster; the process-local cached values defined here are
// refreshed through an Updater whenever the stored values change.
package settings

import (
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/barnacledb/barnacle/pkg/util/humanizeutil"
)

// Setting implementations wrap a val with atomic access.
type Setting interface {
	setToDefault()
	// Typ returns the short (1 char) string denoting the type of setting.
	Typ() string
	String() string
}

// BoolSetting is the interface of a setting variable that will be updated
// automatically when the corresponding cluster-wide setting of type "b" is
// updated.
type BoolSetting struct {
	defaultValue bool
	v            int32
}

var _ Setting = &BoolSetting{}

// Get retrieves the bool value in the setting.
func (b *BoolSetting) Get() bool {
	return atomic.LoadInt32(&b.v) != 0
}

func (b *BoolSetting) set(v bool) {
	vInt := int32(0)
	if v {
		vInt = 1
	}
	atomic.StoreInt32(&b.v, vInt)
}

func (b *BoolSetting) setToDefault() { b.set(b.defaultValue) }

// Typ returns the short (1 char) string denoting the type of setting.
func (*BoolSetting) Typ() string { return "b" }

func (b *BoolSetting) String() string { return EncodeBool(b.Get()) }

// RegisterBoolSetting defines a new setting with type bool.
func RegisterBoolSetting(key, desc string, defaultValue bool) *BoolSetting {
	setting := &BoolSetting{defaultValue: defaultValue}
	register(key, desc, setting)
	return setting
}

// IntSetting is the interface of a setting variable that will be updated
// automatically when the corresponding cluster-wide setting of type "i" is
// updated.
type IntSetting struct {
	defaultValue int64
	v            int64
}

var _ Setting = &IntSetting{}

// Get retrieves the int value in the setting.
func (i *IntSetting) Get() int64 {
	return atomic.LoadInt64(&i.v)
}

func (i *IntSetting) set(v int64) { atomic.StoreInt64(&i.v, v) }

func (i *IntSetting) setToDefault() { i.set(i.defaultValue) }

// Typ returns the short (1 char) string denoting the type of setting.
func (*IntSetting) Typ() string { return "i" }

func (i *IntSetting) String() string { return EncodeInt(i.Get()) }

// RegisterIntSetting defines a new setting with type int.
func RegisterIntSetting(key, desc string, defaultValue int64) *IntSetting {
	setting := &IntSetting{defaultValue: defaultValue}
	register(key, desc, setting)
	return setting
}

// FloatSetting is the interface of a setting variable that will be updated
// automatically when the corresponding cluster-wide setting of type "f" is
// updated.
type FloatSetting struct {
	defaultValue float64
	v            uint64
}

var _ Setting = &FloatSetting{}

// Get retrieves the float value in the setting.
func (f *FloatSetting) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&f.v))
}

func (f *FloatSetting) set(v float64) {
	atomic.StoreUint64(&f.v, math.Float64bits(v))
}

func (f *FloatSetting) setToDefault() { f.set(f.defaultValue) }

// Typ returns the short (1 char) string denoting the type of setting.
func (*FloatSetting) Typ() string { return "f" }

func (f *FloatSetting) String() string { return EncodeFloat(f.Get()) }

// RegisterFloatSetting defines a new setting with type float.
func RegisterFloatSetting(key, desc string, defaultValue float64) *FloatSetting {
	setting := &FloatSetting{defaultValue: defaultValue}
	register(key, desc, setting)
	return setting
}

// StringSetting is the interface of a setting variable that will be updated
// automatically when the corresponding cluster-wide setting of type "s" is
// updated.
type StringSetting struct {
	defaultValue string
	v            atomic.Value
}

var _ Setting = &StringSetting{}

// Get retrieves the string value in the setting.
func (s *StringSetting) Get() string {
	return s.v.Load().(string)
}

func (s *StringSetting) set(v string) { s.v.Store(v) }

func (s *StringSetting) setToDefault() { s.set(s.defaultValue) }

// Typ returns the short (1 char) string denoting the type of setting.
func (*StringSetting) Typ() string { return "s" }

func (s *StringSetting) String() string { return s.Get() }

// RegisterStringSetting defines a new setting with type string.
func RegisterStringSetting(key, desc string, defaultValue string) *StringSetting {
	setting := &StringSetting{defaultValue: defaultValue}
	register(key, desc, setting)
	return setting
}

// DurationSetting is the interface of a setting variable that will be
// updated automatically when the corresponding cluster-wide setting of type
// "d" is updated.
type DurationSetting struct {
	defaultValue time.Duration
	v            int64
}

var _ Setting = &DurationSetting{}

// Get retrieves the duration value in the setting.
func (d *DurationSetting) Get() time.Duration {
	return time.Duration(atomic.LoadInt64(&d.v))
}

func (d *DurationSetting) set(v time.Duration) { atomic.StoreInt64(&d.v, int64(v)) }

func (d *DurationSetting) setToDefault() { d.set(d.defaultValue) }

// Typ returns the short (1 char) string denoting the type of setting.
func (*DurationSetting) Typ() string { return "d" }

func (d *DurationSetting) String() string { return EncodeDuration(d.Get()) }

// RegisterDurationSetting defines a new setting with type duration.
func RegisterDurationSetting(key, desc string, defaultValue time.Duration) *DurationSetting {
	setting := &DurationSetting{defaultValue: defaultValue}
	register(key, desc, setting)
	return setting
}

// ByteSizeSetting is the interface of a setting variable that will be
// updated automatically when the corresponding cluster-wide setting of type
// "z" is updated.
type ByteSizeSetting struct {
	IntSetting
}

var _ Setting = &ByteSizeSetting{}

// Typ returns the short (1 char) string denoting the type of setting.
func (*ByteSizeSetting) Typ() string { return "z" }

func (b *ByteSizeSetting) String() string {
	return string(humanizeutil.IBytes(b.Get()))
}

// RegisterByteSizeSetting defines a new setting with type bytesize.
func RegisterByteSizeSetting(key, desc string, defaultValue int64) *ByteSizeSetting {
	setting := &ByteSizeSetting{IntSetting{defaultValue: defaultValue}}
	register(key, desc, setting)
	return setting
}

// TestingBoolSetting returns a mock, unregistered bool setting for testing.
func TestingBoolSetting(b bool) *BoolSetting {
	s := &BoolSetting{defaultValue: b}
	s.setToDefault()
	return s
}

// TestingStringSetting returns a mock, unregistered string setting for
// testing.
func TestingStringSetting(v string) *StringSetting {
	s := &StringSetting{defaultValue: v}
	s.setToDefault()
	return s
}

// TestingIntSetting returns a mock, unregistered int setting for testing.
func TestingIntSetting(i int64) *IntSetting {
	s := &IntSetting{defaultValue: i}
	s.setToDefault()
	return s
}

// TestingFloatSetting returns a mock, unregistered float setting for testing.
func TestingFloatSetting(f float64) *FloatSetting {
	s := &FloatSetting{defaultValue: f}
	s.setToDefault()
	return s
}

// TestingDurationSetting returns a mock, unregistered duration setting for
// testing.
func TestingDurationSetting(d time.Duration) *DurationSetting {
	s := &DurationSetting{defaultValue: d}
	s.setToDefault()
	return s
}

// TestingByteSizeSetting returns a mock, unregistered byte size setting for
// testing.
func TestingByteSizeSetting(i int64) *ByteSizeSetting {
	s := &ByteSizeSetting{IntSetting{defaultValue: i}}
	s.setToDefault()
	return s
}

// EncodeBool encodes a bool in the format Updater.Set expects.
func EncodeBool(b bool) string { return strconv.FormatBool(b) }

// EncodeInt encodes an int in the format Updater.Set expects.
func EncodeInt(i int64) string { return strconv.FormatInt(i, 10) }

// EncodeFloat encodes a float in the format Updater.Set expects.
func EncodeFloat(f float64) string {
	return strconv.FormatFloat(f, 'G', -1, 64)
}

// EncodeDuration encodes a duration in the format Updater.Set expects.
func EncodeDuration(d time.Duration) string { return d.String() }
