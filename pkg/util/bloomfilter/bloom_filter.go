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

// Package bloomfilter implements a split-block Bloom filter.
//
// The filter is laid out as an array of 256-bit buckets, each occupying a
// single cache line. An insert or membership probe touches exactly one
// bucket: the low 32 bits of the hash select the bucket, and the high 32
// bits, combined with eight per-lane salts, select one bit in each of the
// bucket's eight 32-bit words. This bounds every operation to a single
// cache miss, at the cost of a slightly higher false-positive rate than a
// standard Bloom filter of equal size.
//
// Filters of equal capacity merge by ORing their directories, which makes
// the structure suitable for distributed aggregation: per-node filters are
// shipped as raw directory bytes and combined without deserializing into
// intermediate structures.
package bloomfilter

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

const (
	// BucketBytes is the size of a single filter bucket.
	BucketBytes    = 32
	logBucketBytes = 5
	bucketWords    = BucketBytes / 4

	// MaxLogHeapBytes bounds the capacity exponent accepted from the wire.
	MaxLogHeapBytes = 30
)

// salts are the per-lane multipliers used to derive each word's bit
// position from the hash. They are the odd constants used by the multiply-
// shift scheme of Dietzfelbinger et al.
var salts = [bucketWords]uint32{
	0x47b6137b, 0x44974d91, 0x8824ad5b, 0xa2b7289d,
	0x705495c7, 0x2df1424b, 0x9efc4947, 0x5c6bfb31,
}

// bucket is one cache line of filter state.
type bucket [bucketWords]uint32

// BloomFilter is a split-block Bloom filter. The zero value is not usable;
// construct instances with NewBloomFilter or FromDirectory. Methods are not
// safe for concurrent mutation.
type BloomFilter struct {
	alwaysTrue    bool
	logNumBuckets int32
	directoryMask uint32
	directory     []bucket
}

// AlwaysTrueFilter is the shared disabled-filter sentinel: a filter that
// reports every value as possibly present. It allocates no directory and
// must never be inserted into.
var AlwaysTrueFilter = &BloomFilter{alwaysTrue: true}

// NewBloomFilter returns an empty filter occupying 2^logHeapBytes bytes of
// directory, subject to a two-bucket minimum.
func NewBloomFilter(logHeapBytes int32) *BloomFilter {
	logNumBuckets := max(1, logHeapBytes-logBucketBytes)
	return &BloomFilter{
		logNumBuckets: logNumBuckets,
		directoryMask: uint32(1)<<logNumBuckets - 1,
		directory:     make([]bucket, 1<<logNumBuckets),
	}
}

// FromDirectory reconstructs a filter from the wire encoding of its
// directory, as produced by MarshalDirectory on a filter of the same
// capacity exponent. It returns an error if the exponent is out of range
// or the directory length does not match it.
func FromDirectory(logHeapBytes int32, directory []byte) (*BloomFilter, error) {
	if logHeapBytes < 1 || logHeapBytes > MaxLogHeapBytes {
		return nil, errors.Errorf("invalid filter capacity exponent %d", logHeapBytes)
	}
	if expected := ExpectedHeapBytes(logHeapBytes); int64(len(directory)) != expected {
		return nil, errors.Errorf(
			"filter directory has %d bytes, expected %d", len(directory), expected)
	}
	bf := NewBloomFilter(logHeapBytes)
	off := 0
	for i := range bf.directory {
		for w := range bf.directory[i] {
			bf.directory[i][w] = binary.LittleEndian.Uint32(directory[off:])
			off += 4
		}
	}
	return bf, nil
}

// ExpectedHeapBytes returns the directory size a filter constructed with
// the given capacity exponent will occupy. It is usable before
// construction, for memory admission checks.
func ExpectedHeapBytes(logHeapBytes int32) int64 {
	return int64(BucketBytes) << max(1, logHeapBytes-logBucketBytes)
}

// FalsePositiveProb returns the expected false-positive probability of a
// filter with the given capacity exponent after inserting ndv distinct
// values.
func FalsePositiveProb(ndv int64, logHeapBytes int32) float64 {
	if ndv <= 0 {
		return 0
	}
	bits := float64(int64(8) << logHeapBytes)
	return math.Pow(1-math.Exp(-8*float64(ndv)/bits), 8)
}

// IsAlwaysTrue reports whether this filter is the disabled-filter sentinel.
func (bf *BloomFilter) IsAlwaysTrue() bool { return bf.alwaysTrue }

// LogHeapBytes returns the filter's capacity exponent, after the two-bucket
// minimum was applied.
func (bf *BloomFilter) LogHeapBytes() int32 {
	return bf.logNumBuckets + logBucketBytes
}

// HeapBytes returns the directory size of the filter. The always-true
// sentinel occupies no heap.
func (bf *BloomFilter) HeapBytes() int64 {
	return int64(len(bf.directory)) * BucketBytes
}

// makeMask computes, for each word of a bucket, the single bit selected by
// that word's salt.
func makeMask(lanes uint32) bucket {
	var mask bucket
	for i := range salts {
		mask[i] = 1 << ((lanes * salts[i]) >> 27)
	}
	return mask
}

// InsertHash adds a hashed value to the filter.
func (bf *BloomFilter) InsertHash(h uint64) {
	if bf.alwaysTrue {
		panic(errors.AssertionFailedf("insert into the always-true filter"))
	}
	b := &bf.directory[uint32(h)&bf.directoryMask]
	mask := makeMask(uint32(h >> 32))
	for i := range mask {
		b[i] |= mask[i]
	}
}

// MayContainHash probes the filter for a hashed value. False means the
// value was definitely never inserted; true means it may have been.
func (bf *BloomFilter) MayContainHash(h uint64) bool {
	if bf.alwaysTrue {
		return true
	}
	b := &bf.directory[uint32(h)&bf.directoryMask]
	mask := makeMask(uint32(h >> 32))
	for i := range mask {
		if b[i]&mask[i] == 0 {
			return false
		}
	}
	return true
}

// Or merges other into the receiver. After the merge the receiver contains
// every value inserted into either filter. The filters must have equal
// capacity.
func (bf *BloomFilter) Or(other *BloomFilter) error {
	if bf.alwaysTrue || other.alwaysTrue {
		return errors.AssertionFailedf("cannot merge the always-true filter")
	}
	if bf.logNumBuckets != other.logNumBuckets {
		return errors.Errorf(
			"cannot merge filters of different capacities: %d vs %d bytes",
			bf.HeapBytes(), other.HeapBytes())
	}
	for i := range bf.directory {
		for w := range bf.directory[i] {
			bf.directory[i][w] |= other.directory[i][w]
		}
	}
	return nil
}

// OrBytes merges a wire-encoded directory of equal capacity into the
// receiver in place, without materializing a second filter.
func (bf *BloomFilter) OrBytes(directory []byte) error {
	if bf.alwaysTrue {
		return errors.AssertionFailedf("cannot merge into the always-true filter")
	}
	if int64(len(directory)) != bf.HeapBytes() {
		return errors.Errorf(
			"filter directory has %d bytes, expected %d", len(directory), bf.HeapBytes())
	}
	off := 0
	for i := range bf.directory {
		for w := range bf.directory[i] {
			bf.directory[i][w] |= binary.LittleEndian.Uint32(directory[off:])
			off += 4
		}
	}
	return nil
}

// MarshalDirectory returns the wire encoding of the filter's directory:
// the bucket words in index order, each little-endian. The always-true
// sentinel encodes as nil; callers transmit it as a flag instead.
func (bf *BloomFilter) MarshalDirectory() []byte {
	if bf.alwaysTrue {
		return nil
	}
	out := make([]byte, bf.HeapBytes())
	off := 0
	for i := range bf.directory {
		for w := range bf.directory[i] {
			binary.LittleEndian.PutUint32(out[off:], bf.directory[i][w])
			off += 4
		}
	}
	return out
}
