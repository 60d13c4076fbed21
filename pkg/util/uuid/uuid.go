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

// Package uuid wraps github.com/gofrs/uuid behind the small API surface this
// codebase needs, with constructors that cannot fail.
package uuid

import "github.com/gofrs/uuid"

// UUID is a RFC 4122 universally unique identifier.
type UUID = uuid.UUID

// Nil is the nil UUID, with all 128 bits set to zero.
var Nil = uuid.Nil

// MakeV4 returns a new randomly generated UUID. It panics only if the
// system's source of randomness is unavailable.
func MakeV4() UUID {
	return uuid.Must(uuid.NewV4())
}

// FromString parses the canonical string representation of a UUID.
func FromString(s string) (UUID, error) {
	return uuid.FromString(s)
}

// FromBytes constructs a UUID from a 16-byte slice.
func FromBytes(b []byte) (UUID, error) {
	return uuid.FromBytes(b)
}
