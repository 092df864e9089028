package sol

import (
	"cmp"
	"sync/atomic"
)

// List is a lock-free sorted linked list with unique keys.
//
// Entries are kept in ascending key order. Deletion follows the
// Harris-Michael scheme: a node is first marked deleted on its own next
// reference, then unlinked, and every traversal helps finish unlinks it
// comes across. All operations are lock-free, so a stalled goroutine
// never stops the others from making progress.
//
// The mark cannot live in a pointer bit here, so a node's next reference
// is a small immutable link carrying the successor and the deleted flag
// together. Marking or unlinking replaces the whole link by CAS, and the
// link's identity tells a racing goroutine exactly what it read.
//
// The zero List is empty and ready to use.
// It must not be copied after first use.
type List[K cmp.Ordered, V any] struct {
	head atomic.Pointer[link[K, V]]
}

// Head returns a cursor positioned before the first entry.
func (l *List[K, V]) Head() Cursor[K, V] {
	c := Cursor[K, V]{pred: &l.head}
	c.predLink = l.head.Load()
	if c.predLink != nil {
		c.curr = c.predLink.next
	}
	return c
}

// Lookup returns the value stored in the list for a key.
// The ok result indicates whether the key was found.
func (l *List[K, V]) Lookup(key K) (value V, ok bool) {
	for {
		c := l.Head()
		found, clean := c.Find(key)
		if !clean {
			continue
		}
		if !found {
			return
		}
		return c.Value(), true
	}
}

// Insert adds key with value to the list. It returns false, leaving the
// list unchanged, if the key is already present.
func (l *List[K, V]) Insert(key K, value V) bool {
	n := &node[K, V]{key: key, value: value}
	for {
		c := l.Head()
		found, clean := c.Find(key)
		if !clean {
			continue
		}
		if found {
			return false
		}
		if c.insert(n) {
			return true
		}
	}
}

// Delete removes the entry for a key, returning its value if any.
// The ok result reports whether the key was present.
func (l *List[K, V]) Delete(key K) (value V, ok bool) {
	for {
		c := l.Head()
		found, clean := c.Find(key)
		if !clean {
			continue
		}
		if !found {
			return
		}
		if v, deleted := c.Delete(); deleted {
			return v, true
		}
	}
}

// All returns an iterator over each key and value present in the list,
// in ascending key order.
//
// The iterator does not correspond to any consistent snapshot of the
// list's contents: no key will be visited more than once, but entries
// inserted or deleted concurrently may or may not be reflected.
func (l *List[K, V]) All() func(yield func(K, V) bool) {
	return l.Range
}

// Range calls yield sequentially for each key and value present in the
// list, in ascending key order. If yield returns false, Range stops the
// iteration. It provides the same guarantees as All.
func (l *List[K, V]) Range(yield func(K, V) bool) {
	lk := l.head.Load()
	for lk != nil && lk.next != nil {
		curr := lk.next
		cl := curr.link.Load()
		if !cl.deleted {
			if !yield(curr.key, curr.value) {
				return
			}
		}
		lk = cl
	}
}

// Cursor is a position in a List: an entry plus the reference leading to
// it. Find moves the cursor forward and Insert and Delete operate at its
// position, which is how an operation spanning several steps keeps its
// place without locking the list.
//
// Cursors are cheap values. A cursor whose CAS or Find fails is stale
// and must be thrown away; restart from List.Head.
type Cursor[K cmp.Ordered, V any] struct {
	pred     *atomic.Pointer[link[K, V]]
	predLink *link[K, V]
	curr     *node[K, V]
}

// Find advances the cursor to the first entry with a key not less than
// key, unlinking marked entries it passes over. The found result
// reports whether that entry's key is exactly key. A clean result of
// false means an unlink CAS failed and the cursor is stale; the caller
// restarts with a fresh one.
func (c *Cursor[K, V]) Find(key K) (found, clean bool) {
	for {
		curr := c.curr
		if curr == nil {
			return false, true
		}
		cl := curr.link.Load()
		if cl.deleted {
			// The entry is marked. Unlink it before looking at its key.
			fresh := &link[K, V]{next: cl.next}
			if !c.pred.CompareAndSwap(c.predLink, fresh) {
				return false, false
			}
			c.predLink = fresh
			c.curr = cl.next
			continue
		}
		switch cmp.Compare(curr.key, key) {
		case -1:
			c.pred = &curr.link
			c.predLink = cl
			c.curr = cl.next
		case 0:
			return true, true
		default:
			return false, true
		}
	}
}

// Insert places a new entry at the cursor. The caller is responsible for
// having positioned the cursor with Find for this key, otherwise the
// list order breaks. It returns false if the splice CAS lost a race, in
// which case the cursor is stale.
func (c *Cursor[K, V]) Insert(key K, value V) bool {
	return c.insert(&node[K, V]{key: key, value: value})
}

// insert splices n in front of the cursor's entry. On success the cursor
// rests on n. Callers that retry keep handing in the same node, so a
// lost race costs nothing but the CAS.
func (c *Cursor[K, V]) insert(n *node[K, V]) bool {
	n.link.Store(&link[K, V]{next: c.curr})
	fresh := &link[K, V]{next: n}
	if !c.pred.CompareAndSwap(c.predLink, fresh) {
		return false
	}
	c.predLink = fresh
	c.curr = n
	return true
}

// Delete removes the entry at the cursor, returning its value. It
// returns false if another goroutine deleted the entry first. The mark
// alone makes the deletion visible; the unlink that follows is best
// effort, and a later traversal finishes it if the CAS here loses.
func (c *Cursor[K, V]) Delete() (value V, ok bool) {
	curr := c.curr
	if curr == nil {
		panic("called Delete on a cursor without an entry")
	}
	var next *node[K, V]
	for {
		cl := curr.link.Load()
		if cl.deleted {
			return
		}
		next = cl.next
		if curr.link.CompareAndSwap(cl, &link[K, V]{next: next, deleted: true}) {
			break
		}
		// The link changed under us without a mark, so an entry was
		// spliced in right behind curr. Reload and mark again.
	}
	if c.pred.CompareAndSwap(c.predLink, &link[K, V]{next: next}) {
		c.curr = next
	}
	return curr.value, true
}

// Value returns the value of the entry at the cursor. It must only be
// called after a Find that reported found.
func (c *Cursor[K, V]) Value() V {
	if c.curr == nil {
		panic("called Value on a cursor without an entry")
	}
	return c.curr.value
}

// link is the {successor, deleted} pair a next reference points at.
// deleted describes the node owning the reference, not the successor.
// Links are immutable once published; every change installs a fresh one,
// so a CAS on the owning field can never mistake an old state for a new
// one.
type link[K cmp.Ordered, V any] struct {
	next    *node[K, V]
	deleted bool
}

// node is a list entry. key and value are set before the node is
// published and never change afterwards.
type node[K cmp.Ordered, V any] struct {
	link  atomic.Pointer[link[K, V]]
	key   K
	value V
}
