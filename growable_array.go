package sol

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// GrowableArray is a lock-free array that grows on demand and never
// relocates its elements.
//
// The array is a tree of fixed-size segments. Interior segments point at
// child segments, leaf segments hold the element slots, and the tree
// gains a level whenever an index needs more bits than the current
// levels can decode. A leaf slot is allocated exactly once and never
// moves, so the pointer returned by Get stays valid for the lifetime of
// the array and may be published to other goroutines.
//
// Indices span the whole uint64 range; seven levels are enough to decode
// any of them.
//
// The zero GrowableArray is empty and ready to use.
// It must not be copied after first use.
type GrowableArray[T any] struct {
	root atomic.Pointer[arrayRoot]
}

// Get returns the slot for index, allocating any segments missing on the
// way down. The same index always yields the same slot, no matter which
// goroutine asks. A fresh slot holds nil.
func (ga *GrowableArray[T]) Get(index uint64) *atomic.Pointer[T] {
	required := heightFor(index)
	root := ga.root.Load()
	if root == nil || root.height < required {
		root = ga.grow(required)
	}
	seg := root.seg
	for level := root.height - 1; level > 0; level-- {
		slot := &seg.slots[(index>>(level*segmentShift))&segmentMask]
		child := (*segment)(atomic.LoadPointer(slot))
		if child == nil {
			// Install a fresh segment. Whoever wins the race, everyone
			// descends into the same child.
			child = new(segment)
			if !atomic.CompareAndSwapPointer(slot, nil, unsafe.Pointer(child)) {
				child = (*segment)(atomic.LoadPointer(slot))
			}
		}
		seg = child
	}
	return (*atomic.Pointer[T])(unsafe.Pointer(&seg.slots[index&segmentMask]))
}

// grow raises the tree to at least required levels. Each step stacks a
// fresh segment on top with the old root in its slot 0, which preserves
// every index: the new top-level chunk of any index the old tree could
// decode is zero. Losing the root CAS is fine, the winner's root is
// adopted and the loop keeps going until the tree is tall enough.
func (ga *GrowableArray[T]) grow(required uint) *arrayRoot {
	root := ga.root.Load()
	for root == nil {
		fresh := &arrayRoot{seg: new(segment), height: 1}
		if ga.root.CompareAndSwap(nil, fresh) {
			root = fresh
		} else {
			root = ga.root.Load()
		}
	}
	for root.height < required {
		top := new(segment)
		top.slots[0] = unsafe.Pointer(root.seg)
		taller := &arrayRoot{seg: top, height: root.height + 1}
		if ga.root.CompareAndSwap(root, taller) {
			root = taller
		} else {
			root = ga.root.Load()
		}
	}
	return root
}

// Clear drops every segment, resetting the array to empty. It must not
// run concurrently with any other method on the array. Slots handed out
// before Clear keep their contents but are no longer reachable through
// the array, and the elements themselves are untouched: the array never
// owned them.
func (ga *GrowableArray[T]) Clear() {
	ga.root.Store(nil)
}

// heightFor returns the number of levels needed to decode index,
// segmentShift bits per level. Index zero still needs one.
func heightFor(index uint64) uint {
	h := (bits.Len64(index) + segmentShift - 1) / segmentShift
	if h == 0 {
		h = 1
	}
	return uint(h)
}

const (
	// Ten bits of index per level, 1024 slots per segment.
	segmentShift = 10
	segmentSize  = 1 << segmentShift
	segmentMask  = segmentSize - 1
)

// arrayRoot pairs the top segment with the tree height. The pair is
// immutable once published; growth installs a whole new arrayRoot, so a
// single load observes a consistent segment/height combination.
type arrayRoot struct {
	seg    *segment
	height uint
}

// segment is one node of the tree. Interior slots hold a *segment and
// leaf slots hold a *T; one shape serves every level, so slots are raw
// words and Get casts the leaf slot it returns. The cast relies on
// atomic.Pointer being exactly one word.
type segment struct {
	slots [segmentSize]unsafe.Pointer
}
