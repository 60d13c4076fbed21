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

package testutils

import (
	"time"

	"github.com/barnacledb/barnacle/pkg/util/retry"
)

// DefaultSucceedsSoonDuration is the maximum amount of time unittests
// will wait for a condition to become true. See SucceedsSoon().
const DefaultSucceedsSoonDuration = 45 * time.Second

// TestFataler is a slimmed down version of testing.TB for use in helper
// functions by testing contexts which do not come from the stdlib testing
// package.
type TestFataler interface {
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Helper()
}

// SucceedsSoon fails the test (with t.Fatal) unless the supplied function
// runs without error within a default timeout. The function is invoked
// immediately at first and then successively with an exponential backoff
// starting at 1ns and ending at the default maximum duration.
func SucceedsSoon(t TestFataler, fn func() error) {
	t.Helper()
	SucceedsWithin(t, fn, DefaultSucceedsSoonDuration)
}

// SucceedsWithin fails the test (with t.Fatal) unless the supplied function
// runs without error within the given duration.
func SucceedsWithin(t TestFataler, fn func() error, duration time.Duration) {
	t.Helper()
	if err := retry.ForDuration(duration, fn); err != nil {
		t.Fatalf("condition failed to evaluate within %s: %s", duration, err)
	}
}
