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

package settings

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// An Updater is a helper for updating the in-memory settings from a batch of
// raw stored values.
//
// Settings are stored by the cluster as strings; the Updater parses each raw
// value according to the setting's type and installs it. A refresh passes the serialized representations of all individual settings, then
// calls Done; any setting not seen by the Updater in that batch (e.g. one
// whose stored value was deleted) is reset to its default.
type Updater struct {
	m map[string]struct{}
}

// MakeUpdater returns a new Updater, pre-alloced to the registry size.
func MakeUpdater() Updater {
	return Updater{m: make(map[string]struct{}, len(registry))}
}

// Set attempts to parse and update a setting and notes that it was updated.
// A failed update still marks the setting as seen, so that a bad stored
// value preserves the previously set value instead of reverting it to the
// default.
func (u Updater) Set(key, rawValue, vt string) error {
	d, _, ok := Lookup(key)
	if !ok {
		// Likely a setting this binary doesn't know about.
		return errors.Errorf("unknown setting '%s'", key)
	}
	u.m[key] = struct{}{}

	if expected := d.Typ(); vt != expected {
		return errors.Errorf("setting '%s' defined as type %s, not %s", key, expected, vt)
	}

	switch setting := d.(type) {
	case *StringSetting:
		setting.set(rawValue)
	case *BoolSetting:
		b, err := strconv.ParseBool(rawValue)
		if err != nil {
			return err
		}
		setting.set(b)
	case *ByteSizeSetting:
		i, err := strconv.Atoi(rawValue)
		if err != nil {
			return err
		}
		setting.set(int64(i))
	case *IntSetting:
		i, err := strconv.Atoi(rawValue)
		if err != nil {
			return err
		}
		setting.set(int64(i))
	case *FloatSetting:
		f, err := strconv.ParseFloat(rawValue, 64)
		if err != nil {
			return err
		}
		setting.set(f)
	case *DurationSetting:
		dur, err := time.ParseDuration(rawValue)
		if err != nil {
			return err
		}
		setting.set(dur)
	}
	return nil
}

// Done sets all settings not updated by the updater to their default values.
func (u Updater) Done() {
	for k, v := range registry {
		if _, ok := u.m[k]; !ok {
			v.setting.setToDefault()
		}
	}
}
