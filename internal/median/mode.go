package median

// Mode returns, for every byte offset, the most frequent value across
// samples. Ties resolve to the lowest value. Every sample must have the
// same length; Mode returns nil when samples is empty.
func Mode(samples [][]byte) []byte {
	if len(samples) == 0 {
		return nil
	}

	out := make([]byte, len(samples[0]))
	var counts [256]int

	for i := range out {
		for _, s := range samples {
			counts[s[i]]++
		}

		best, bestCount := 0, 0
		for _, s := range samples {
			v := int(s[i])
			c := counts[v]
			if c > bestCount || (c == bestCount && v < best) {
				best, bestCount = v, c
			}
		}
		out[i] = byte(best)

		// Reset only what this offset touched.
		for _, s := range samples {
			counts[s[i]] = 0
		}
	}

	return out
}
