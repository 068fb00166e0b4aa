package atmcache

import (
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

func TestEarliestExpiring(t *testing.T) {
	base := time.Date(2021, 1, 9, 14, 3, 0, 0, time.UTC)
	items := map[string]gocache.Item{
		"late":  {Object: &entry{expiresAt: base.Add(time.Hour), seq: 1}},
		"tie-b": {Object: &entry{expiresAt: base, seq: 5}},
		"tie-a": {Object: &entry{expiresAt: base, seq: 3}},
		"other": {Object: "not an entry"},
	}
	for i := 0; i < 20; i++ {
		victim, ok := earliestExpiring(items)
		if !ok || victim != "tie-a" {
			t.Fatalf("expected tie-a, got %q ok=%v", victim, ok)
		}
	}
}

func TestEarliestExpiringEmpty(t *testing.T) {
	if _, ok := earliestExpiring(map[string]gocache.Item{}); ok {
		t.Fatalf("expected no victim for empty map")
	}
}
