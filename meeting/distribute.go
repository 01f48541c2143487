package meeting

// Distribute splits n items over weeks slots: n/weeks each, with the first n%weeks slots
// taking one extra. When n < weeks the trailing slots are zero.
func Distribute(n, weeks int) []int {
	if weeks <= 0 {
		return nil
	}
	if n < 0 {
		n = 0
	}
	out := make([]int, weeks)
	base, extra := n/weeks, n%weeks
	for i := range out {
		out[i] = base
		if i < extra {
			out[i]++
		}
	}
	return out
}
