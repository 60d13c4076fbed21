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

package randutil

import (
	crypto_rand "crypto/rand"
	"encoding/binary"
	"log" // Avoid a dependency on pkg/util/log from this leaf package.
	"math/rand"
	"testing"
)

// NewPseudoSeed generates a seed from crypto/rand.
func NewPseudoSeed() int64 {
	var seed int64
	err := binary.Read(crypto_rand.Reader, binary.LittleEndian, &seed)
	if err != nil {
		log.Fatalf("could not read from crypto/rand: %s", err)
	}
	return seed
}

// NewPseudoRand returns an instance of math/rand.Rand seeded from
// crypto/rand and its seed so we can easily and cheaply generate unique
// streams of numbers.
func NewPseudoRand() (*rand.Rand, int64) {
	seed := NewPseudoSeed()
	return rand.New(rand.NewSource(seed)), seed
}

// NewTestRand returns an instance of math/rand.Rand seeded from a random
// seed. The seed is logged so that test failures can be reproduced.
func NewTestRand(t testing.TB) (*rand.Rand, int64) {
	rng, seed := NewPseudoRand()
	t.Logf("random seed: %d", seed)
	return rng, seed
}

// RandBytes returns a byte slice of the given length with random data.
func RandBytes(r *rand.Rand, size int) []byte {
	if size <= 0 {
		return nil
	}
	arr := make([]byte, size)
	for i := range arr {
		arr[i] = byte(r.Int())
	}
	return arr
}
