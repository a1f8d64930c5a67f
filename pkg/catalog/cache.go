package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// DefaultRefreshInterval is how long a fetched catalog is served before refreshing
const DefaultRefreshInterval = time.Hour

// DefaultFetchTimeout bounds one source fetch
const DefaultFetchTimeout = 10 * time.Second

// CacheConfig configures a Cache
type CacheConfig struct {
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Clock           quota.Clock
	Logger          quota.Logger
	Metrics         quota.Metrics
}

// Cache holds the last fetched catalog and when it was fetched. Concurrent
// refreshes collapse into one fetch; a failed refresh keeps serving the
// previous value.
type Cache struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	clock    quota.Clock
	logger   quota.Logger
	metrics  quota.Metrics

	group singleflight.Group

	mu        sync.RWMutex
	value     []Entry
	fetchedAt time.Time
}

// NewCache creates a cache over source
func NewCache(source Source, config CacheConfig) *Cache {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	if config.Clock == nil {
		config.Clock = quota.SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = &quota.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &quota.NoopMetrics{}
	}
	return &Cache{
		source:   source,
		interval: config.RefreshInterval,
		timeout:  config.FetchTimeout,
		clock:    config.Clock,
		logger:   config.Logger,
		metrics:  config.Metrics,
	}
}

// Get returns the catalog, refreshing it when older than the refresh interval
func (c *Cache) Get(ctx context.Context) ([]Entry, error) {
	value, fetchedAt := c.snapshot()
	if value != nil && c.clock.Now().Sub(fetchedAt) < c.interval {
		return value, nil
	}

	result, err, _ := c.group.Do("catalog", func() (interface{}, error) {
		// Another caller may have refreshed while we waited
		if value, fetchedAt := c.snapshot(); value != nil && c.clock.Now().Sub(fetchedAt) < c.interval {
			return value, nil
		}
		// The flight is shared, so one caller going away must not cancel it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.refresh(fetchCtx)
	})
	if err != nil {
		if value != nil {
			c.logger.Warn("catalog refresh failed, serving stale copy",
				quota.F("fetched_at", fetchedAt), quota.F("error", err.Error()))
			return value, nil
		}
		return nil, err
	}
	return result.([]Entry), nil
}

// FetchedAt reports when the cached value was loaded; zero if never
func (c *Cache) FetchedAt() time.Time {
	_, fetchedAt := c.snapshot()
	return fetchedAt
}

func (c *Cache) refresh(ctx context.Context) ([]Entry, error) {
	entries, err := c.source.Fetch(ctx)
	if err == nil && len(entries) == 0 {
		err = ErrEmptyCatalog
	}
	c.metrics.RecordCatalogRefresh(err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.value = entries
	c.fetchedAt = c.clock.Now()
	c.mu.Unlock()

	c.logger.Debug("catalog refreshed", quota.F("entries", len(entries)))
	return entries, nil
}

func (c *Cache) snapshot() ([]Entry, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.fetchedAt
}
