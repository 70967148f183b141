package persistence

import (
	"github.com/dgraph-io/ristretto"
	"github.com/hession/taskmem/internal/entry"
)

// entryCache keeps decoded entries so repeated reads skip the medium.
// A nil inner cache disables caching.
type entryCache struct {
	c *ristretto.Cache
}

func newEntryCache(maxEntries int64) (*entryCache, error) {
	if maxEntries <= 0 {
		return &entryCache{}, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &entryCache{c: c}, nil
}

func (ec *entryCache) get(id string) (*entry.Entry, bool) {
	if ec.c == nil {
		return nil, false
	}
	v, ok := ec.c.Get(id)
	if !ok {
		return nil, false
	}
	e, ok := v.(*entry.Entry)
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

func (ec *entryCache) put(e *entry.Entry) {
	if ec.c == nil {
		return
	}
	cp := *e
	ec.c.Set(e.ID, &cp, 1)
	// Sets are buffered; flush so the next read sees this entry
	ec.c.Wait()
}

func (ec *entryCache) del(id string) {
	if ec.c != nil {
		ec.c.Del(id)
		// Flush buffered sets so an earlier put cannot resurrect the id
		ec.c.Wait()
	}
}

func (ec *entryCache) clear() {
	if ec.c != nil {
		ec.c.Clear()
	}
}

func (ec *entryCache) close() {
	if ec.c != nil {
		ec.c.Close()
	}
}
