package evset

import "log"

// A Ring is a non-owning handle to a closed doubly-linked cycle of
// Nodes. Any node of the cycle serves as the handle. Membership is
// intrusive: a node belongs to exactly one ring at a time, identified
// solely by its neighbor links.
type Ring struct {
	handle *Node
}

// selfLink closes a node into a one-element ring.
func selfLink(n *Node) {
	n.next = n
	n.prev = n
}

// ringOf wraps an existing cycle member as a handle.
func ringOf(n *Node) *Ring {
	return &Ring{handle: n}
}

// Handle returns the ring's current handle node.
func (r *Ring) Handle() *Node {
	return r.handle
}

// Size counts the nodes by traversal.
func (r *Ring) Size() int {
	if r.handle == nil {
		return 0
	}

	size := 1
	for n := r.handle.next; n != r.handle; n = n.next {
		size++
	}

	return size
}

// Do calls f on every node in forward order, stopping early if f
// returns false. f must not relink the ring.
func (r *Ring) Do(f func(*Node) bool) {
	if r.handle == nil || !f(r.handle) {
		return
	}

	for n := r.handle.next; n != r.handle; n = n.next {
		if !f(n) {
			return
		}
	}
}

// Nodes returns the members in forward order from the handle.
func (r *Ring) Nodes() []*Node {
	var nodes []*Node

	r.Do(func(n *Node) bool {
		nodes = append(nodes, n)
		return true
	})

	return nodes
}

// Contains reports whether n is a member.
func (r *Ring) Contains(n *Node) bool {
	found := false

	r.Do(func(m *Node) bool {
		if m == n {
			found = true
			return false
		}
		return true
	})

	return found
}

// Push splices n in front of the handle, at the logical tail of the
// ring. n must not currently belong to any ring.
func (r *Ring) Push(n *Node) {
	if r.handle == nil {
		selfLink(n)
		r.handle = n

		return
	}

	head := r.handle
	tail := head.prev

	n.next = head
	n.prev = tail
	tail.next = n
	head.prev = n
}

// Remove unsplices n from the ring. The handle advances past n when
// needed. Removing the last node empties the ring.
func (r *Ring) Remove(n *Node) {
	if n.next == n {
		if n != r.handle {
			log.Panic("node is not a member of this ring")
		}

		r.handle = nil
		n.next = nil
		n.prev = nil

		return
	}

	if r.handle == n {
		r.handle = n.next
	}

	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
}

// detach unsplices n but leaves n's own links intact so reattach can
// restore it in place. Used for the temporary removals during slice
// isolation.
func detach(n *Node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// reattach restores a node removed by detach.
func reattach(n *Node) {
	n.prev.next = n
	n.next.prev = n
}

// SplitAfter unsplices the k nodes starting at the handle into a new
// ring and returns it. The receiver keeps the remainder with its handle
// on the first surviving node. k must leave at least one node behind.
func (r *Ring) SplitAfter(k int) *Ring {
	if k <= 0 || k >= r.Size() {
		log.Panicf("cannot split %d nodes out of a ring of %d", k, r.Size())
	}

	head := r.handle
	last := head

	for i := 1; i < k; i++ {
		last = last.next
	}

	newHead := last.next
	tail := head.prev

	// Close the remainder.
	newHead.prev = tail
	tail.next = newHead
	r.handle = newHead

	// Close the split-off run.
	head.prev = last
	last.next = head

	return ringOf(head)
}

// Validate checks that the ring is a well-formed cycle: following next
// from the handle returns to it, and every node's neighbor links are
// mutually consistent.
func (r *Ring) Validate() error {
	if r.handle == nil {
		return errMalformed("ring is empty")
	}

	n := r.handle
	for {
		if n.next == nil || n.prev == nil {
			return errMalformed("node has nil neighbor")
		}

		if n.next.prev != n || n.prev.next != n {
			return errMalformed("neighbor links are inconsistent")
		}

		n = n.next
		if n == r.handle {
			return nil
		}
	}
}
