// Package atmcache is an in-process TTL cache that shields slow backing
// sources from duplicate work.
//
// Reads through Fetch are served from memory while fresh. Once an entry
// expires it is still served (stale-while-revalidate) and exactly one
// background refresh is started. Concurrent misses on the same key share a
// single producer call. Failed or empty producer results are never cached, so
// the next read simply tries again.
//
// The cache holds at most Config.MaxEntries entries; a write that exceeds the
// bound evicts the entry that expires first.
//
// Ready-made producers for SQL, Redis, NATS KV and DynamoDB live under source/.
package atmcache
