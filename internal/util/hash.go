// Package util contains internal hashing helpers shared by the cache and the
// distributed ring.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// KeyHash hashes a cache key onto the 64-bit ring keyspace.
func KeyHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// VNodeHash places the idx-th virtual node of nodeID on the ring.
// The node ID and the little-endian index are hashed together so that
// virtual nodes of one member spread independently across the keyspace.
func VNodeHash(nodeID string, idx int) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(nodeID)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(idx))
	_, _ = d.Write(b[:])
	return d.Sum64()
}
