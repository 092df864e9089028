package sol

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
	"sync/atomic"
	"unsafe"
)

// SplitOrderedMap is a lock-free map keyed by integers in [0, 1<<63).
//
// All entries live in a single sorted List and never move. A bucket is a
// sentinel entry threaded into that same list, cached in a GrowableArray
// so an operation can jump straight to its bucket instead of scanning
// from the head. Keys are stored bit-reversed, which keeps one bucket's
// entries contiguous and lets the table double by doing nothing but
// inserting new sentinels: recursive split-ordering, after Shalev and
// Shavit.
//
// The table starts with two buckets and doubles whenever the entry count
// exceeds loadFactor entries per bucket. It never shrinks.
//
// The top bit of the key space is reserved to tell regular entries and
// sentinels apart, so keys with that bit set are rejected with a panic.
//
// The zero SplitOrderedMap is empty and ready to use.
// It must not be copied after first use.
type SplitOrderedMap[V any] struct {
	// The mirror uses plain words for the two pointer-sized structures
	// so the size stays a constant.
	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(struct {
		list    unsafe.Pointer
		buckets unsafe.Pointer
		size    atomic.Uint64
		count   atomic.Int64
	}{})%CacheLineSize) % CacheLineSize]byte

	list    List[uint64, V]
	buckets GrowableArray[node[uint64, V]]
	size    atomic.Uint64
	count   atomic.Int64
}

// NewSplitOrderedMap creates a new SplitOrderedMap. The zero value works
// just as well; the constructor exists for callers that want one.
func NewSplitOrderedMap[V any]() *SplitOrderedMap[V] {
	return &SplitOrderedMap[V]{}
}

// init gives the table its first two buckets. The CAS can lose to a
// concurrent init, which leaves exactly the state we wanted anyway.
func (m *SplitOrderedMap[V]) init() {
	if m.size.Load() == 0 {
		m.size.CompareAndSwap(0, minBuckets)
	}
}

// Lookup returns the value stored in the map for a key.
// The ok result indicates whether the key was found.
func (m *SplitOrderedMap[V]) Lookup(key uint64) (value V, ok bool) {
	checkKey(key)
	if m.size.Load() == 0 {
		return
	}
	c, _, found := m.locate(key)
	if !found {
		return
	}
	return c.Value(), true
}

// Insert adds key with value to the map. It returns false, leaving the
// map unchanged, if the key is already present; the caller keeps its
// value.
func (m *SplitOrderedMap[V]) Insert(key uint64, value V) bool {
	checkKey(key)
	m.init()
	n := &node[uint64, V]{key: regularKey(key), value: value}
	for {
		c, s, found := m.locate(key)
		if found {
			return false
		}
		if !c.insert(n) {
			// Lost the splice to a neighbor; take another look.
			continue
		}
		if m.count.Add(1) > int64(s)*loadFactor {
			// One winner doubles the table, everyone else already sees
			// the new size or will on their next operation.
			m.size.CompareAndSwap(s, s*2)
		}
		return true
	}
}

// Delete removes the entry for a key, returning its value if any.
// The ok result reports whether the key was present.
func (m *SplitOrderedMap[V]) Delete(key uint64) (value V, ok bool) {
	checkKey(key)
	if m.size.Load() == 0 {
		return
	}
	for {
		c, _, found := m.locate(key)
		if !found {
			return
		}
		if v, deleted := c.Delete(); deleted {
			m.count.Add(-1)
			return v, true
		}
		// Someone deleted the entry between our find and the mark, or
		// the list moved under the cursor. Find out which.
	}
}

// locate positions a cursor on the bucket for key and finds key's entry
// from there. It also reports the table size it worked against, which
// Insert needs for its growth check. The size is re-read on every retry:
// a conflict may well have been the table doubling.
func (m *SplitOrderedMap[V]) locate(key uint64) (c Cursor[uint64, V], s uint64, found bool) {
	rkey := regularKey(key)
	for {
		s = m.size.Load()
		c = m.resolveBucket(key & (s - 1))
		f, clean := c.Find(rkey)
		if clean {
			return c, s, f
		}
	}
}

// resolveBucket returns a cursor at bucket index's sentinel, giving the
// bucket its sentinel on first touch. Resolution recurses through the
// bucket's ancestors: the parent's cursor seeds the search, a sentinel
// is inserted if nobody else got there first, and the resulting node is
// published to the bucket's slot. Any number of goroutines can resolve
// the same bucket at once and they all land on the same node.
func (m *SplitOrderedMap[V]) resolveBucket(index uint64) Cursor[uint64, V] {
	slot := m.buckets.Get(index)
	skey := sentinelKey(index)
	var fresh *node[uint64, V]
	for {
		if n := slot.Load(); n != nil {
			return cursorAt(n)
		}
		var c Cursor[uint64, V]
		if index == 0 {
			c = m.list.Head()
		} else {
			c = m.resolveBucket(parentIndex(index))
		}
		found, clean := c.Find(skey)
		if !clean {
			continue
		}
		if !found {
			if fresh == nil {
				fresh = &node[uint64, V]{key: skey}
			}
			if !c.insert(fresh) {
				// Lost the sentinel race; rediscover the winner's node.
				continue
			}
		}
		slot.Store(c.curr)
		return cursorAt(c.curr)
	}
}

// cursorAt returns a cursor sitting just past n. Bucket slots cache
// sentinel nodes rather than cursors, so operations rebuild their
// position from the node. Skipping the sentinel itself is fine: it is
// never a candidate for any caller's key, every key searched through a
// bucket sorts strictly after its sentinel.
func cursorAt[V any](n *node[uint64, V]) Cursor[uint64, V] {
	c := Cursor[uint64, V]{pred: &n.link}
	c.predLink = n.link.Load()
	c.curr = c.predLink.next
	return c
}

// All returns an iterator over each key and value present in the map.
//
// The iterator does not correspond to any consistent snapshot of the
// map's contents: no key will be visited more than once, but entries
// inserted or deleted concurrently (including by yield) may or may not
// be reflected. Visit order follows the internal split ordering, not
// ascending key order.
func (m *SplitOrderedMap[V]) All() func(yield func(uint64, V) bool) {
	return m.Range
}

// Range calls yield sequentially for each key and value present in the
// map. If yield returns false, Range stops the iteration. It provides
// the same guarantees as All.
func (m *SplitOrderedMap[V]) Range(yield func(key uint64, value V) bool) {
	m.list.Range(func(k uint64, v V) bool {
		if k&1 == 0 {
			// Bucket sentinels share the list with the entries and
			// carry even keys; skip them.
			return true
		}
		return yield(bits.Reverse64(k)&^(1<<63), v)
	})
}

// Size returns the number of entries in the map. Concurrent insertions
// and deletions can move it the moment it is read; at rest it is exact.
func (m *SplitOrderedMap[V]) Size() int {
	return int(m.count.Load())
}

// IsZero checks if the map is empty
func (m *SplitOrderedMap[V]) IsZero() bool {
	return m.count.Load() == 0
}

// ToMap returns all key-value pairs as a standard map
func (m *SplitOrderedMap[V]) ToMap() map[uint64]V {
	r := make(map[uint64]V)
	m.Range(func(k uint64, v V) bool {
		r[k] = v
		return true
	})
	return r
}

// String Implement the formatting output interface for fmt.Print %v
func (m *SplitOrderedMap[V]) String() string {
	return strings.Replace(fmt.Sprint(m.ToMap()), "map[", "SplitOrderedMap[", 1)
}

// MarshalJSON JSON serialization
func (m *SplitOrderedMap[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

// UnmarshalJSON JSON deserialization. Keys already present keep the
// value they have.
func (m *SplitOrderedMap[V]) UnmarshalJSON(data []byte) error {
	var raw map[uint64]V
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		m.Insert(k, v)
	}
	return nil
}

const (
	// A bucket splits once the map averages more than loadFactor entries
	// per bucket; each split doubles the bucket count.
	loadFactor = 2

	// The table starts with two buckets so the very first split already
	// has a parent to hang its sentinel from.
	minBuckets = 2
)

// regularKey is the split-ordered key for a user key: the key with the
// top bit set, bit-reversed. Reversal clusters one bucket's entries,
// and the set top bit becomes a low 1 bit, keeping every regular key
// strictly after its bucket's sentinel.
func regularKey(key uint64) uint64 {
	return bits.Reverse64(key | 1<<63)
}

// sentinelKey is the split-ordered key for a bucket sentinel: the bucket
// index bit-reversed. Sentinel keys are even, regular keys odd, so the
// two never collide.
func sentinelKey(index uint64) uint64 {
	return bits.Reverse64(index)
}

// parentIndex returns the bucket this one split from when the table
// doubled: the index with its highest set bit cleared. Index 0 has no
// parent and must not be asked for one.
func parentIndex(index uint64) uint64 {
	return index &^ (1 << (bits.Len64(index) - 1))
}

// checkKey rejects keys with the most significant bit set. That bit is
// reserved to tell regular entries and bucket sentinels apart.
func checkKey(key uint64) {
	if key&(1<<63) != 0 {
		panic("sol.SplitOrderedMap: the most significant bit of the key must be 0")
	}
}
