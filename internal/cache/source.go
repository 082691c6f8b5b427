package cache

import (
	"context"

	"go.uber.org/zap"

	"info-collecte/internal/logger"
	"info-collecte/internal/scraper"
)

// Source serves markup from the cache and falls back to the wrapped source
// on a miss.
type Source struct {
	inner scraper.Source
	cache *Cache
	log   *zap.SugaredLogger
}

// NewSource wraps inner with c.
func NewSource(inner scraper.Source, c *Cache, log *zap.SugaredLogger) *Source {
	return &Source{inner: inner, cache: c, log: logger.OrNop(log)}
}

func (s *Source) Name() string {
	return s.inner.Name() + "+cache"
}

func (s *Source) Fetch(ctx context.Context, address string) (string, error) {
	if markup, ok := s.cache.Get(address); ok {
		s.log.Debugw("markup served from cache", logger.FieldAddress, address)
		return markup, nil
	}

	markup, err := s.inner.Fetch(ctx, address)
	if err != nil {
		return "", err
	}

	if err := s.cache.Set(address, markup); err != nil {
		s.log.Warnw("failed to cache markup", logger.FieldAddress, address, logger.FieldError, err)
	}
	return markup, nil
}

// Invalidate drops the cached page of an address, e.g. when it held no
// calendar.
func (s *Source) Invalidate(address string) {
	if err := s.cache.Invalidate(address); err != nil {
		s.log.Warnw("failed to invalidate cached markup", logger.FieldAddress, address, logger.FieldError, err)
	}
}
