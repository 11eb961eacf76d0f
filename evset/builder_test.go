package evset

import (
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// nopOracle skips the latency assertions. Specs run on simulated
// probes, not on the measured platform.
type nopOracle struct{}

func (nopOracle) CheckCandidateRing(*Ring) error     { return nil }
func (nopOracle) CheckConflictRing(*Ring) error      { return nil }
func (nopOracle) CheckEvictionRing(int, *Ring) error { return nil }

// sliceProber simulates an ideal sliced cache. Each line belongs to the
// slice its line index selects; a traversal evicts a line exactly when
// the ring holds a full set column of other lines in that slice.
type sliceProber struct {
	geom cachegeom.Geometry
	base uintptr
}

func newSliceProber(g cachegeom.Geometry, region *Region) *sliceProber {
	return &sliceProber{geom: g, base: region.Node(0).Addr()}
}

func (p *sliceProber) sliceOf(n *Node) uint64 {
	lineIndex := uint64(n.Addr()-p.base) / p.geom.LineSize

	return (lineIndex / p.geom.SetsPerSlice) % p.geom.SliceCount
}

func (p *sliceProber) Probe(r *Ring, c *Node) (bool, error) {
	target := p.sliceOf(c)
	colliding := uint64(0)

	r.Do(func(n *Node) bool {
		if n != c && p.sliceOf(n) == target {
			colliding++
		}
		return true
	})

	return colliding >= p.geom.WaysPerSlice, nil
}

var _ = Describe("Builder", func() {
	var (
		region *Region
		prober *sliceProber
		b      Builder
	)

	quietLogger := log.New(GinkgoWriter, "", 0)

	BeforeEach(func() {
		region = testRegion(testGeometry, 256)
		prober = newSliceProber(testGeometry, region)

		b = MakeBuilder().
			WithGeometry(testGeometry).
			WithProber(prober).
			WithOracle(nopOracle{}).
			WithWitnessConfirmation(5).
			WithLogger(quietLogger)
	})

	It("should return one ring of the associativity per slice", func() {
		group, err := b.Build(region, 2)

		Expect(err).ToNot(HaveOccurred())
		Expect(group.Rings).To(HaveLen(int(testGeometry.SliceCount)))

		for _, r := range group.Rings {
			Expect(r.Size()).To(Equal(int(testGeometry.WaysPerSlice)))
			Expect(r.Validate()).To(Succeed())
		}
	})

	It("should produce pairwise disjoint rings", func() {
		group, err := b.Build(region, 2)
		Expect(err).ToNot(HaveOccurred())

		// Keyed by address: HaveKey compares keys deeply, which would
		// match any *Node against any other.
		seen := make(map[uintptr]struct{})
		for _, r := range group.Rings {
			for _, n := range r.Nodes() {
				Expect(seen).ToNot(HaveKey(n.Addr()))
				seen[n.Addr()] = struct{}{}
			}
		}

		Expect(seen).To(HaveLen(int(testGeometry.ConflictSetSize())))
	})

	It("should only use lines of the target set", func() {
		group, err := b.Build(region, 3)
		Expect(err).ToNot(HaveOccurred())

		for _, r := range group.Rings {
			for _, n := range r.Nodes() {
				Expect(testGeometry.SetIndexOf(n.Addr())).To(Equal(uint64(3)))
			}
		}
	})

	It("should group each ring within one slice", func() {
		group, err := b.Build(region, 1)
		Expect(err).ToNot(HaveOccurred())

		for _, r := range group.Rings {
			slices := make(map[uint64]struct{})
			for _, n := range r.Nodes() {
				slices[prober.sliceOf(n)] = struct{}{}
			}

			Expect(slices).To(HaveLen(1))
		}

		// And the rings together cover every slice.
		covered := make(map[uint64]struct{})
		for _, r := range group.Rings {
			covered[prober.sliceOf(r.Handle())] = struct{}{}
		}

		Expect(covered).To(HaveLen(int(testGeometry.SliceCount)))
	})

	It("should reproduce the same partition for the same seed", func() {
		addressSets := func(group *SetGroup) []map[uintptr]struct{} {
			sets := make([]map[uintptr]struct{}, 0, len(group.Rings))

			for _, r := range group.Rings {
				set := make(map[uintptr]struct{})
				for _, n := range r.Nodes() {
					set[n.Addr()] = struct{}{}
				}
				sets = append(sets, set)
			}

			return sets
		}

		first, err := b.WithSeed(7).Build(region, 2)
		Expect(err).ToNot(HaveOccurred())
		firstSets := addressSets(first)

		second, err := b.WithSeed(7).Build(region, 2)
		Expect(err).ToNot(HaveOccurred())
		secondSets := addressSets(second)

		Expect(secondSets).To(ConsistOf(firstSets))
	})

	It("should report a pool too small for the geometry", func() {
		small := testRegion(testGeometry, 32)

		_, err := b.Build(small, 0)
		Expect(err).To(MatchError(ErrInsufficientCandidates))
	})

	It("should surface prober failures", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		prober := NewMockProber(mockCtrl)
		prober.EXPECT().
			Probe(gomock.Any(), gomock.Any()).
			Return(false, ErrProbeUnstable).
			AnyTimes()

		_, err := b.WithProber(prober).Build(region, 2)

		Expect(err).To(MatchError(ErrProbeUnstable))
	})
})
