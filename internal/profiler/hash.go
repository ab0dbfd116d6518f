package profiler

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"
)

// HashInt64 hashes a 64-bit key by its byte representation, the
// expected instantiation per spec.md §3 ("K... typically a 64-bit
// integer"). Dependency carried from _examples/aalhour-rockyardkv's own
// go.mod, repurposed from block-cache-key hashing to last-access-map
// shard routing.
func HashInt64(key int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return xxh3.Hash(buf[:])
}

// HashInt hashes a machine-int key the same way as HashInt64.
func HashInt(key int) uint64 {
	return HashInt64(int64(key))
}

// HashAny is the fallback for an arbitrary comparable key type: it
// hashes the key's default string representation. Slower than
// HashInt64/HashInt, but keeps the sampler usable for any K without
// requiring every caller to write its own hash function.
func HashAny[K comparable](key K) uint64 {
	return xxh3.HashString(fmt.Sprint(key))
}
