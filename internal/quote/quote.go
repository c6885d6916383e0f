// Package quote serves the world gold price: one upstream call, cached
// process-wide behind a TTL.
package quote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
)

// Quote is the upstream gold price snapshot.
type Quote struct {
	Metal     string    `json:"metal"`
	Currency  string    `json:"currency"`
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache is a single-entry TTL cache: populated on miss, invalidated after
// the TTL elapses. Concurrent misses may each refetch; the upstream call is
// idempotent, so the duplication is harmless.
type Cache struct {
	mu        sync.Mutex
	value     Quote
	populated bool
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewCache creates an empty cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// Get returns the cached quote and whether it is still valid.
func (c *Cache) Get() (Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.populated || c.now().After(c.expiresAt) {
		return Quote{}, false
	}
	return c.value, true
}

// Set stores a fresh quote and restarts the TTL.
func (c *Cache) Set(q Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = q
	c.populated = true
	c.expiresAt = c.now().Add(c.ttl)
}

// Fetcher pulls the latest quote from the upstream price API.
type Fetcher struct {
	url    string
	token  string
	client *retryablehttp.Client
	now    func() time.Time
}

// NewFetcher creates a Fetcher for the given upstream URL and access token.
func NewFetcher(url, token string) *Fetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	return &Fetcher{url: url, token: token, client: rc, now: time.Now}
}

// Latest fetches the current quote.
func (f *Fetcher) Latest(ctx context.Context) (Quote, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: build request: %w", err)
	}
	req.Header.Set("x-access-token", f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quote: upstream status %d", resp.StatusCode)
	}

	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return Quote{}, fmt.Errorf("quote: decode response: %w", err)
	}
	q.FetchedAt = f.now().UTC()
	return q, nil
}

// Service combines the fetcher and cache.
type Service struct {
	fetcher *Fetcher
	cache   *Cache
}

// NewService wires a Service.
func NewService(fetcher *Fetcher, cache *Cache) *Service {
	return &Service{fetcher: fetcher, cache: cache}
}

// Latest returns the cached quote when valid, otherwise refetches and
// repopulates the cache. The second return value reports a cache hit.
func (s *Service) Latest(ctx context.Context) (Quote, bool, error) {
	if q, ok := s.cache.Get(); ok {
		return q, true, nil
	}
	q, err := s.fetcher.Latest(ctx)
	if err != nil {
		return Quote{}, false, err
	}
	s.cache.Set(q)
	return q, false, nil
}
