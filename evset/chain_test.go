package evset

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// addrsOf lists node addresses so that order comparisons check node
// identity. Equal on []*Node compares the pointed-to nodes deeply, and
// all nodes of one ring look alike that way.
func addrsOf(nodes []*Node) []uintptr {
	addrs := make([]uintptr, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.Addr()
	}

	return addrs
}

var _ = Describe("Chain", func() {
	var nodes []*Node

	BeforeEach(func() {
		region := testRegion(testGeometry, 256)

		candidates, err := region.Candidates(testGeometry, 1)
		Expect(err).ToNot(HaveOccurred())

		nodes = candidates
	})

	It("should link every candidate into one cycle", func() {
		ring := Chain(nodes, 0)

		Expect(ring.Size()).To(Equal(len(nodes)))
		Expect(ring.Validate()).To(Succeed())
	})

	It("should produce the same order for the same seed", func() {
		first := addrsOf(Chain(nodes, 42).Nodes())
		second := addrsOf(Chain(nodes, 42).Nodes())

		Expect(second).To(Equal(first))
	})

	It("should produce different orders for different seeds", func() {
		first := addrsOf(Chain(nodes, 1).Nodes())
		second := addrsOf(Chain(nodes, 2).Nodes())

		Expect(second).ToNot(Equal(first))
	})

	It("should not walk memory monotonically", func() {
		// A prefetch-friendly order would show long monotone runs of
		// address differences. A random permutation flips direction on
		// most steps; anything above half is comfortably non-monotone.
		ring := Chain(nodes, 0)
		ordered := ring.Nodes()

		signChanges := 0
		comparisons := 0

		for i := 2; i < len(ordered); i++ {
			prev := int64(ordered[i-1].Addr()) - int64(ordered[i-2].Addr())
			cur := int64(ordered[i].Addr()) - int64(ordered[i-1].Addr())

			comparisons++
			if (prev > 0) != (cur > 0) {
				signChanges++
			}
		}

		Expect(float64(signChanges)).To(
			BeNumerically(">", 0.5*float64(comparisons)))
	})
})
