package evset

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Candidates", func() {
	It("should return only lines addressing the target set", func() {
		region := testRegion(testGeometry, 128)

		for set := uint64(0); set < testGeometry.SetsPerSlice; set++ {
			candidates, err := region.Candidates(testGeometry, set)
			Expect(err).ToNot(HaveOccurred())

			for _, n := range candidates {
				Expect(testGeometry.SetIndexOf(n.Addr())).To(Equal(set))
			}
		}
	})

	It("should cover the region when all sets are combined", func() {
		region := testRegion(testGeometry, 128)

		total := 0
		for set := uint64(0); set < testGeometry.SetsPerSlice; set++ {
			candidates, err := region.Candidates(testGeometry, set)
			Expect(err).ToNot(HaveOccurred())

			total += len(candidates)
		}

		Expect(total).To(Equal(region.Len()))
	})

	It("should reject a region with too few matching lines", func() {
		// One line per set: far below twice the conflict-set size.
		region := testRegion(testGeometry, int(testGeometry.SetsPerSlice))

		_, err := region.Candidates(testGeometry, 0)
		Expect(err).To(MatchError(ErrInsufficientCandidates))
	})
})
