package evset

import (
	"log"
	"math/rand"
)

// Chain links the given nodes into one closed ring visiting every node
// exactly once, in a pseudo-random order drawn from seed. A strided or
// sorted order would let the stream prefetcher bring each line in ahead
// of its timed access, so the order must look random in memory. The
// fixed seed makes reruns on the same region reproduce the same chain.
func Chain(nodes []*Node, seed int64) *Ring {
	if len(nodes) == 0 {
		log.Panic("cannot chain zero nodes")
	}

	order := make([]*Node, len(nodes))
	copy(order, nodes)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	for i, n := range order {
		next := order[(i+1)%len(order)]
		n.next = next
		next.prev = n
	}

	return ringOf(order[0])
}
