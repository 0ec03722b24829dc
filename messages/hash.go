package messages

import "hash/fnv"

// StateHash computes the FNV-1a hash of an authoritative state snapshot. The
// server includes it in MessageStateDelta and MessageFullSnapshotResponse so
// that clients can verify their replica matches the authoritative copy.
func StateHash(snapshot []byte) uint64 {
	h := fnv.New64a()
	// Hash.Write never returns an error.
	_, _ = h.Write(snapshot)
	return h.Sum64()
}
