package client

import "math/rand/v2"

// Fragment splits msg into contiguous non-empty chunks whose concatenation
// is msg. Each chunk length is drawn uniformly from what is left.
// The chunks alias msg.
func Fragment(rng *rand.Rand, msg []byte) [][]byte {
	var chunks [][]byte
	for pos := 0; pos < len(msg); {
		n := 1 + rng.IntN(len(msg)-pos)
		chunks = append(chunks, msg[pos:pos+n:pos+n])
		pos += n
	}
	return chunks
}
