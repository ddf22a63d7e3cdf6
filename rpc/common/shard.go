package common

// ResourceShard derives the wire-level shard id a request for resourceID is
// framed under, the same FNV-1a idiom storage uses to hash a sub-database
// name to its physical key prefix. A request's shard id doubles as a check
// that client and server agree on which resource instance they are talking
// to: a ResourceClient configured for one resource id connecting to a
// server process actually serving a different one gets a clear mismatch
// error instead of silently operating against the wrong resource.
func ResourceShard(resourceID string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	h := uint64(offset64)
	for i := 0; i < len(resourceID); i++ {
		h ^= uint64(resourceID[i])
		h *= prime64
	}
	return h
}
