// Copyright 2025 Certen Protocol
//
// Triple-Replication ECC - every frame byte written three times, recovered
// by majority vote
// Corrects any single corrupted copy per group and exposes the observed
// error rate; random bit-flip robustness holds below roughly one third

package lsb

// Replicate returns frame with every byte repeated three times contiguously.
func Replicate(frame []byte) []byte {
	out := make([]byte, 0, len(frame)*3)
	for _, b := range frame {
		out = append(out, b, b, b)
	}
	return out
}

// MajorityDecode collapses groups of three bytes by majority vote. A tie
// (all three copies distinct) resolves to the first copy. The second return
// is the number of groups whose copies disagreed, for the error-rate field.
// Trailing bytes past the last full group are dropped.
func MajorityDecode(buf []byte) ([]byte, int) {
	groups := len(buf) / 3
	out := make([]byte, groups)
	mismatches := 0

	for i := 0; i < groups; i++ {
		a, b, c := buf[i*3], buf[i*3+1], buf[i*3+2]
		if a != b || b != c {
			mismatches++
		}
		switch {
		case a == b || a == c:
			out[i] = a
		case b == c:
			out[i] = b
		default:
			out[i] = a
		}
	}
	return out, mismatches
}
