package rag_augur

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"audit-rag/internal/domain"
)

// CachedEncoder memoizes embeddings per text. The same query string recurs
// across the finding and chunk stages, so one LRU entry saves two calls.
type CachedEncoder struct {
	inner domain.VectorEncoder
	cache *lru.Cache[string, []float32]
}

func NewCachedEncoder(inner domain.VectorEncoder, size int) *CachedEncoder {
	cache, _ := lru.New[string, []float32](size)
	return &CachedEncoder{inner: inner, cache: cache}
}

func (c *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(cacheKey(text)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	// The embedding call runs outside any lock; a concurrent duplicate just
	// overwrites the same cache entry.
	vectors, err := c.inner.Encode(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i, vec := range vectors {
		out[missingIdx[i]] = vec
		c.cache.Add(cacheKey(missing[i]), vec)
	}
	return out, nil
}

func cacheKey(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

var _ domain.VectorEncoder = (*CachedEncoder)(nil)
