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

package humanizeutil

import (
	"time"

	"github.com/cockroachdb/redact"
)

// Duration formats a duration in a user-friendly way. The result is not exact
// and the granularity is no smaller than microseconds.
//
// Examples:
//
//	0              ->  "0µs"
//	123456ns       ->  "123µs"
//	12345678ns     ->  "12ms"
//	12345678912ns  ->  "12.3s"
func Duration(val time.Duration) redact.SafeString {
	val = val.Round(time.Microsecond)
	if val == 0 {
		return "0µs"
	}
	// Everything under 1ms shows up as µs.
	if val < time.Millisecond {
		return redact.SafeString(val.String())
	}
	// Everything between 1ms and 1s shows up as ms.
	if val < time.Second {
		return redact.SafeString(val.Round(time.Millisecond).String())
	}
	// Everything between 1s and 1m shows up as seconds with one decimal.
	if val < time.Minute {
		return redact.SafeString(val.Round(100 * time.Millisecond).String())
	}
	// Everything larger is rounded to the nearest second.
	return redact.SafeString(val.Round(time.Second).String())
}
