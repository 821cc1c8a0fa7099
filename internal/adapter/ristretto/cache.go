// Package ristretto implements an in-process membership cache backed by
// dgraph-io/ristretto. Positive and negative membership answers are cached
// with a short TTL; AddMember and project deletion invalidate by key.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/port/membership"
)

// Checker caches membership lookups in front of a slower source.
type Checker struct {
	source membership.Checker
	cache  *ristretto.Cache[string, bool]
	ttl    time.Duration
}

// NewChecker wraps source with a ristretto cache configured from cfg.
func NewChecker(source membership.Checker, cfg config.Cache) (*Checker, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters: cfg.NumCounter,
		MaxCost:     cfg.MaxCostMB << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Checker{source: source, cache: c, ttl: cfg.TTL}, nil
}

func cacheKey(projectID, userID string) string {
	return projectID + "/" + userID
}

// IsMember answers from cache when possible, falling through to the
// source on a miss. Source errors are never cached.
func (c *Checker) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	key := cacheKey(projectID, userID)
	if ok, found := c.cache.Get(key); found {
		return ok, nil
	}

	ok, err := c.source.IsMember(ctx, projectID, userID)
	if err != nil {
		return false, err
	}

	// Cost 1 per entry; eviction is count-driven, entries are tiny.
	c.cache.SetWithTTL(key, ok, 1, c.ttl)
	return ok, nil
}

// Invalidate drops the cached answer for one (project, user) pair.
func (c *Checker) Invalidate(projectID, userID string) {
	c.cache.Del(cacheKey(projectID, userID))
}

// Close releases the cache's resources.
func (c *Checker) Close() {
	c.cache.Close()
}
