package sol

import (
	"cmp"
	"sync"
)

// OrderedListSet is a sorted linked set protected by fine-grained locks.
//
// Every node's mutex guards the link leaving it, and the set's own mutex
// guards the link to the first node. Traversal locks hand over hand:
// the next lock is taken before the current one is released, so a
// traversal holds exactly the lock guarding its position and operations
// on different parts of the chain proceed in parallel.
//
// The zero OrderedListSet is empty and ready to use.
// It must not be copied after first use.
type OrderedListSet[T cmp.Ordered] struct {
	mu   sync.Mutex
	head *setNode[T]
}

// Contains reports whether data is in the set.
func (s *OrderedListSet[T]) Contains(data T) bool {
	c, found := s.find(data)
	c.mu.Unlock()
	return found
}

// Insert adds data to the set. It returns false, leaving the set
// unchanged, if data is already present.
func (s *OrderedListSet[T]) Insert(data T) bool {
	c, found := s.find(data)
	defer c.mu.Unlock()
	if found {
		return false
	}
	*c.slot = &setNode[T]{data: data, next: *c.slot}
	return true
}

// Remove takes data out of the set, returning the stored element.
// The ok result reports whether it was present.
func (s *OrderedListSet[T]) Remove(data T) (element T, ok bool) {
	c, found := s.find(data)
	defer c.mu.Unlock()
	if !found {
		return
	}
	n := *c.slot
	// The node's own lock may still be held by a traversal standing on
	// it; wait for that traversal to move on before unlinking.
	n.mu.Lock()
	*c.slot = n.next
	n.mu.Unlock()
	return n.data, true
}

// Range calls yield for each element in ascending order. The traversal
// keeps its hand-over-hand locks while yield runs, so yield must not
// call back into the set. If yield returns false, Range stops.
func (s *OrderedListSet[T]) Range(yield func(T) bool) {
	mu := &s.mu
	mu.Lock()
	n := s.head
	for n != nil {
		if !yield(n.data) {
			break
		}
		n.mu.Lock()
		mu.Unlock()
		mu = &n.mu
		n = n.next
	}
	mu.Unlock()
}

// find walks to the first slot whose node's data is not less than data
// and returns a cursor holding that slot's lock. The caller unlocks it.
func (s *OrderedListSet[T]) find(data T) (setCursor[T], bool) {
	c := setCursor[T]{mu: &s.mu, slot: &s.head}
	c.mu.Lock()
	for {
		n := *c.slot
		if n == nil {
			return c, false
		}
		switch cmp.Compare(n.data, data) {
		case -1:
			n.mu.Lock()
			c.mu.Unlock()
			c = setCursor[T]{mu: &n.mu, slot: &n.next}
		case 0:
			return c, true
		default:
			return c, false
		}
	}
}

// setCursor is a link slot in the chain together with the held mutex
// guarding it.
type setCursor[T cmp.Ordered] struct {
	mu   *sync.Mutex
	slot **setNode[T]
}

type setNode[T cmp.Ordered] struct {
	mu   sync.Mutex
	next *setNode[T]
	data T
}
