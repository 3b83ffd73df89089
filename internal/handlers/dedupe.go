package handlers

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const dedupeCacheSize = 4096

// Deduper is the in-memory first line of idempotency for webhook deliveries;
// the event_deliveries table is the durable second line. Backed by an
// expiring LRU so memory stays bounded under delivery storms.
type Deduper struct {
	cache *expirable.LRU[string, struct{}]
}

func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{cache: expirable.NewLRU[string, struct{}](dedupeCacheSize, nil, ttl)}
}

// CheckAndMark returns true when the key was seen within the TTL, else marks
// it and returns false.
func (d *Deduper) CheckAndMark(source, deliveryID, payloadSum string) bool {
	if d == nil || d.cache == nil {
		return false
	}
	key := source + "|" + deliveryID + "|" + payloadSum
	if _, ok := d.cache.Get(key); ok {
		return true
	}
	d.cache.Add(key, struct{}{})
	return false
}
