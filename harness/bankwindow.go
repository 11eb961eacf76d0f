package harness

// A BankWindow is the cycle-counter interval during which victims
// flooded one bank's eviction ring.
type BankWindow struct {
	Start uint64
	End   uint64
}

// A BankBucket holds the attacker epoch deltas whose timestamps fell
// inside one bank window.
type BankBucket struct {
	Bank   int
	Deltas []uint64
}

// EpochDeltas returns the differences between consecutive timestamps.
func EpochDeltas(times []uint64) []uint64 {
	if len(times) < 2 {
		return nil
	}

	deltas := make([]uint64, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas[i-1] = times[i] - times[i-1]
	}

	return deltas
}

// SplitIntoBankWindows buckets the attacker's timestamp stream by bank
// window. Both the stream and the windows are monotone, so a single
// index walks the stream once. A window that extends past the last
// attacker epoch is truncated to the epochs that exist — the attacker
// can finish before the victims do — and the number of truncated
// windows is reported so the caller can flag the run.
func SplitIntoBankWindows(
	times []uint64,
	windows []BankWindow,
) (buckets []BankBucket, truncated int) {
	idx := 0

	for bank, w := range windows {
		for idx < len(times) && times[idx] < w.Start {
			idx++
		}

		start := idx
		if start == 0 {
			// times[start-1] does not exist; the first epoch has no delta.
			start = 1
		}

		for idx < len(times) && times[idx] < w.End {
			idx++
		}

		bucket := BankBucket{Bank: bank}
		for i := start; i < idx; i++ {
			bucket.Deltas = append(bucket.Deltas, times[i]-times[i-1])
		}

		buckets = append(buckets, bucket)

		if idx == len(times) &&
			(len(times) == 0 || times[len(times)-1] < w.End) {
			truncated++
		}
	}

	return buckets, truncated
}
