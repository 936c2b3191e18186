package artwork

import (
	"context"

	"github.com/charmbracelet/log"
)

// Fetcher loads artwork bytes for a URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Store persists fetched images.
type Store interface {
	Artwork(key string) ([]byte, bool, error)
	PutArtwork(key string, data []byte) error
}

// Cache serves images from a Store and falls back to a Fetcher on a miss.
type Cache struct {
	store   Store
	fetcher Fetcher
	logger  *log.Logger
}

// NewCache wraps fetcher with store.
func NewCache(store Store, fetcher Fetcher, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{store: store, fetcher: fetcher, logger: logger.WithPrefix("artwork")}
}

func (c *Cache) Fetch(ctx context.Context, uri string) ([]byte, error) {
	data, ok, err := c.store.Artwork(uri)
	if err != nil {
		c.logger.Warn("cache read failed", "err", err)
	}
	if ok {
		return data, nil
	}

	data, err = c.fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := c.store.PutArtwork(uri, data); err != nil {
		c.logger.Warn("cache write failed", "err", err)
	}
	return data, nil
}
