// Package cache implements the three-tier lookup chain used for geocode and
// weather data: process memory, disk, then a remote fetch with write-through.
// Entries are treated as immutable once written; past-dated weather and
// geocode results never change, so there is no invalidation path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/jellydator/ttlcache/v3"

	"github.com/ifrog800/StravaAddon/pkg/observability"
	"github.com/ifrog800/StravaAddon/pkg/storage"
)

// ErrLookup wraps failures of the remote fetch tier.
var ErrLookup = errors.New("cache: lookup failed")

// FetchFunc performs the remote call that backs the final tier.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Tiered resolves keys through memory, disk and a remote fetch.
type Tiered struct {
	namespace string
	mem       *ttlcache.Cache[string, json.RawMessage]
	disk      *storage.Store
}

// New creates a cache for one namespace ("geocode" or "weather"). Disk
// entries live under <data>/cache/<namespace>/.
func New(namespace string, disk *storage.Store) *Tiered {
	return &Tiered{
		namespace: namespace,
		mem:       ttlcache.New[string, json.RawMessage](),
		disk:      disk,
	}
}

func (c *Tiered) diskDir() string {
	return path.Join("cache", c.namespace)
}

// Resolve returns the payload for key, consulting memory first, then disk,
// then fetch. A successful fetch is written through to both tiers before
// returning. Fetch failures wrap ErrLookup and nothing is cached.
func (c *Tiered) Resolve(ctx context.Context, key string, fetch FetchFunc) (json.RawMessage, error) {
	if item := c.mem.Get(key); item != nil {
		observability.RecordCacheLookup(c.namespace, "memory")
		return item.Value(), nil
	}

	var payload json.RawMessage
	err := c.disk.Read(c.diskDir(), key, &payload)
	if err == nil {
		c.mem.Set(key, payload, ttlcache.NoTTL)
		observability.RecordCacheLookup(c.namespace, "disk")
		return payload, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrLookup, c.namespace, key, err)
	}

	payload, err = fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrLookup, c.namespace, key, err)
	}

	if err := c.disk.Write(c.diskDir(), key, payload); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrLookup, c.namespace, key, err)
	}
	c.mem.Set(key, payload, ttlcache.NoTTL)
	observability.RecordCacheLookup(c.namespace, "fetch")
	return payload, nil
}

// ClearMemory drops the memory tier. Disk entries are untouched.
func (c *Tiered) ClearMemory() {
	c.mem.DeleteAll()
}
