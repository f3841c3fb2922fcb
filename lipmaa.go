package plog

// lipmaa computes the 1-indexed sequence number of the logarithmic-skip
// back-link target for a 1-indexed sequence number n (0 for n <= 1), the
// Secure Scuttlebutt-style algorithm behind
// Entry.Lipmaa. Only the linear prev-chain is required to verify, so the
// back-link is an ancestor hint, not a verified invariant.
func lipmaa(n uint64) uint64 {
	if n <= 1 {
		return 0
	}
	m := uint64(1)
	po3 := uint64(3)
	for m < n {
		po3 *= 3
		m = (po3 - 1) / 2
	}
	po3 /= 3
	m = (po3 - 1) / 2
	if n-m == 1 {
		if po3 > n {
			return n - 1
		}
		return n - po3
	}
	for m != 0 {
		po3 /= 3
		m /= 3
		if n-m <= po3 {
			break
		}
	}
	if m == 0 || m >= n {
		return n - 1
	}
	return n - m
}

// lipmaaAncestorSeq returns the 0-indexed sequence number of seq's lipmaa
// ancestor, clamped into [0, seq-1] (seq is 0-indexed, matching Entry.Seq;
// the foot is seq 0).
func lipmaaAncestorSeq(seq uint64) uint64 {
	if seq == 0 {
		return 0
	}
	anc := lipmaa(seq+1) - 1
	if anc >= seq {
		return seq - 1
	}
	return anc
}
