package value

import "hash/fnv"

// HashString computes the 32-bit FNV-1a hash of s: hashes are taken over
// raw bytes with no case or encoding normalization. Both the string
// intern table and every StringObject's cached Hash field use this
// function so that equal bytes always hash identically regardless of
// where the hash is computed. Built on the standard library's own fnv
// package rather than a hand-rolled accumulator — hash/fnv's New32a
// already implements exactly the required algorithm.
func HashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
