package jwks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves the raw JWKS document body for uri. Callers typically
// supply a function backed by an HTTP client with its own timeout and
// circuit-breaking; the cache itself is transport-agnostic.
type Fetcher func(ctx context.Context, uri string) ([]byte, error)

// Unmarshal decodes a JSON document into v. Injected so callers can use
// whichever JSON library the rest of the host process uses.
type Unmarshal func([]byte, interface{}) error

// Cache holds the current key Set for one provider's JWKS URI and
// refreshes it on demand. A Cache is safe for concurrent use.
//
// Refresh is atomic-swap: readers of Current never observe a Set with
// fewer keys than the previous successful fetch produced, because a
// failed or in-flight fetch never replaces the stored pointer until it
// has fully succeeded.
type Cache struct {
	uri       string
	fetch     Fetcher
	unmarshal Unmarshal

	current atomic.Pointer[Set]

	group singleflight.Group

	mu                    sync.Mutex
	lastUnknownKidRefresh time.Time
	unknownKidInterval    time.Duration
}

// NewCache creates a Cache for the given JWKS URI. unknownKidInterval
// rate-limits refreshes triggered by an unrecognized kid (default 10s,
// see spec §3's "refreshed ... on verification failure caused by unknown
// kid (with rate limit)").
func NewCache(uri string, fetch Fetcher, unmarshal Unmarshal, unknownKidInterval time.Duration) *Cache {
	if unknownKidInterval <= 0 {
		unknownKidInterval = 10 * time.Second
	}
	c := &Cache{
		uri:                uri,
		fetch:              fetch,
		unmarshal:          unmarshal,
		unknownKidInterval: unknownKidInterval,
	}
	c.current.Store(&Set{byKid: map[string]*Key{}})
	return c
}

// Current returns the most recently fetched key set. It is never nil.
func (c *Cache) Current() *Set {
	return c.current.Load()
}

// Refresh fetches the JWKS document, coalescing concurrent calls into a
// single in-flight request, and swaps in the new Set on success. The
// previous Set remains visible via Current until the swap completes.
func (c *Cache) Refresh(ctx context.Context) (*Set, error) {
	v, err, _ := c.group.Do(c.uri, func() (interface{}, error) {
		body, err := c.fetch(ctx, c.uri)
		if err != nil {
			return nil, fmt.Errorf("jwks: fetch %s: %w", c.uri, err)
		}
		set, err := Parse(body, c.unmarshal)
		if err != nil {
			return nil, err
		}
		c.current.Store(set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Set), nil
}

// Lookup returns the key for kid from the current set, transparently
// triggering one rate-limited refresh if kid is unknown — the unknown-kid
// retry-once behavior spec §4.5 item 3 requires of validation.
func (c *Cache) Lookup(ctx context.Context, kid string) (*Key, error) {
	if key, ok := c.Current().Lookup(kid); ok {
		return key, nil
	}

	if !c.allowUnknownKidRefresh() {
		return nil, fmt.Errorf("jwks: key %q not found and refresh rate-limited", kid)
	}

	set, err := c.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := set.Lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("jwks: key %q not found after refresh", kid)
}

func (c *Cache) allowUnknownKidRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUnknownKidRefresh) < c.unknownKidInterval {
		return false
	}
	c.lastUnknownKidRefresh = now
	return true
}

// URI returns the configured JWKS endpoint.
func (c *Cache) URI() string {
	return c.uri
}
