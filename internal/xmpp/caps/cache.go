package caps

import "sync"

// Cache maps fingerprints to capability records and peer addresses to the
// fingerprint they currently advertise. It is constructed at connect time,
// owned by the connection, and dropped at disconnect; entries are never
// evicted during its lifetime.
type Cache struct {
	mu      sync.RWMutex
	records map[string]Record
	byPeer  map[string]string
}

// NewCache creates an empty capability cache.
func NewCache() *Cache {
	return &Cache{
		records: make(map[string]Record),
		byPeer:  make(map[string]string),
	}
}

// Put stores the record for a fingerprint, replacing any previous record.
func (c *Cache) Put(fingerprint string, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[fingerprint] = rec
}

// Map records which fingerprint a peer currently advertises, overwriting
// any prior mapping for that peer. The fingerprint need not have a stored
// record yet.
func (c *Cache) Map(peer, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPeer[peer] = fingerprint
}

// Contains reports whether a record is stored for the fingerprint.
func (c *Cache) Contains(fingerprint string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[fingerprint]
	return ok
}

// RecordFor returns the record stored for a fingerprint.
func (c *Cache) RecordFor(fingerprint string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[fingerprint]
	return rec, ok
}

// RecordForPeer resolves a peer to its advertised fingerprint and then to
// the stored record. A miss at either step means the peer's capabilities
// are simply unknown; it is not an error.
func (c *Cache) RecordForPeer(peer string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ver, ok := c.byPeer[peer]
	if !ok {
		return Record{}, false
	}
	rec, ok := c.records[ver]
	return rec, ok
}
