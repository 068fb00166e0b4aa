package atmcache

import gocache "github.com/patrickmn/go-cache"

// earliestExpiring picks the eviction victim: the entry with the smallest
// expiresAt regardless of freshness. Ties go to the oldest write so the choice
// does not depend on map iteration order.
func earliestExpiring(items map[string]gocache.Item) (string, bool) {
	var (
		victim string
		oldest *entry
	)
	for key, item := range items {
		e, ok := item.Object.(*entry)
		if !ok {
			continue
		}
		if oldest == nil ||
			e.expiresAt.Before(oldest.expiresAt) ||
			(e.expiresAt.Equal(oldest.expiresAt) && e.seq < oldest.seq) {
			victim, oldest = key, e
		}
	}
	return victim, oldest != nil
}
