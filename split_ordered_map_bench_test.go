package sol

import (
	"math/bits"
	"sync/atomic"
	"testing"
)

var benchKeys [128 << 10]uint64

func init() {
	for i := range benchKeys {
		benchKeys[i] = bits.Reverse64(uint64(i+1)) >> 1
	}
}

func BenchmarkSplitOrderedMapLookupSmall(b *testing.B) {
	benchmarkSplitOrderedMapLookup(b, testKeys[:])
}

func BenchmarkSplitOrderedMapLookupLarge(b *testing.B) {
	benchmarkSplitOrderedMapLookup(b, benchKeys[:])
}

func benchmarkSplitOrderedMapLookup(b *testing.B, keys []uint64) {
	b.ReportAllocs()
	var m SplitOrderedMap[int]
	for i, k := range keys {
		m.Insert(k, i)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = m.Lookup(keys[i])
			i++
			if i >= len(keys) {
				i = 0
			}
		}
	})
}

func BenchmarkSplitOrderedMapInsertDelete(b *testing.B) {
	b.ReportAllocs()
	var m SplitOrderedMap[int]
	m.init()
	var lane atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		// Each goroutine churns its own range of keys, alternating
		// between inserting a key and deleting it again.
		base := lane.Add(1) << 32
		i := uint64(0)
		for pb.Next() {
			key := base | i%1024
			if !m.Insert(key, 0) {
				m.Delete(key)
			}
			i++
		}
	})
}

func BenchmarkSplitOrderedMapMixed(b *testing.B) {
	b.ReportAllocs()
	var m SplitOrderedMap[int]
	for i, k := range testKeys {
		m.Insert(k, i)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%8 == 0 {
				// The churn keys set the low bit, so they never
				// collide with the resident ones.
				key := testKeys[i%len(testKeys)] | 1
				if !m.Insert(key, i) {
					m.Delete(key)
				}
			} else {
				_, _ = m.Lookup(testKeys[i%len(testKeys)])
			}
			i++
		}
	})
}
