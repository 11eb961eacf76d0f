package evset

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// testRegion lays nodes over a plain heap buffer. Algorithm-level specs
// do not care about huge pages, only about addresses and links.
func testRegion(g cachegeom.Geometry, numLines int) *Region {
	buf := make([]byte, (numLines+1)*int(g.LineSize))

	region, err := NewRegion(buf, g)
	Expect(err).ToNot(HaveOccurred())
	Expect(region.Len()).To(BeNumerically(">=", numLines))

	return region
}

// testGeometry is small enough that specs can reason about every node.
var testGeometry = cachegeom.Geometry{
	LineSize:     64,
	SliceCount:   3,
	WaysPerSlice: 4,
	SetsPerSlice: 4,
}

var _ = Describe("Ring", func() {
	var (
		region *Region
		ring   *Ring
	)

	BeforeEach(func() {
		region = testRegion(testGeometry, 16)

		nodes := make([]*Node, 8)
		for i := range nodes {
			nodes[i] = region.Node(i)
		}

		ring = Chain(nodes, 0)
	})

	It("should count its nodes by traversal", func() {
		Expect(ring.Size()).To(Equal(8))
	})

	It("should be a well-formed cycle", func() {
		Expect(ring.Validate()).To(Succeed())
	})

	It("should visit every node exactly once", func() {
		seen := make(map[*Node]int)

		ring.Do(func(n *Node) bool {
			seen[n]++
			return true
		})

		Expect(seen).To(HaveLen(8))
		for _, count := range seen {
			Expect(count).To(Equal(1))
		}
	})

	It("should push at the tail", func() {
		n := region.Node(9)
		ring.Push(n)

		Expect(ring.Size()).To(Equal(9))
		Expect(ring.Handle().Prev()).To(BeIdenticalTo(n))
		Expect(ring.Validate()).To(Succeed())
	})

	It("should remove a member and stay closed", func() {
		victim := ring.Handle().Next()
		ring.Remove(victim)

		Expect(ring.Size()).To(Equal(7))
		Expect(ring.Contains(victim)).To(BeFalse())
		Expect(ring.Validate()).To(Succeed())
	})

	It("should advance the handle when it is removed", func() {
		handle := ring.Handle()
		next := handle.Next()

		ring.Remove(handle)

		Expect(ring.Handle()).To(BeIdenticalTo(next))
		Expect(ring.Size()).To(Equal(7))
	})

	It("should empty when the last node is removed", func() {
		single := &Ring{}
		single.Push(region.Node(10))

		single.Remove(single.Handle())

		Expect(single.Size()).To(Equal(0))
	})

	It("should split a run off the front", func() {
		front := ring.Nodes()[:3]

		split := ring.SplitAfter(3)

		Expect(split.Size()).To(Equal(3))
		Expect(ring.Size()).To(Equal(5))
		Expect(split.Validate()).To(Succeed())
		Expect(ring.Validate()).To(Succeed())

		for _, n := range front {
			Expect(split.Contains(n)).To(BeTrue())
			Expect(ring.Contains(n)).To(BeFalse())
		}
	})

	It("should restore a detached node in place", func() {
		n := ring.Handle().Next()
		left, right := n.Prev(), n.Next()

		detach(n)
		Expect(left.Next()).To(BeIdenticalTo(right))

		reattach(n)
		Expect(left.Next()).To(BeIdenticalTo(n))
		Expect(right.Prev()).To(BeIdenticalTo(n))
		Expect(ring.Validate()).To(Succeed())
	})
})
