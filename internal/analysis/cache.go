package analysis

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeebo/blake3"

	"github.com/mesh-intelligence/metalens/internal/metrics"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// DefaultCacheSize and DefaultCacheTTL bound the in-session result cache.
const (
	DefaultCacheSize = 32
	DefaultCacheTTL  = 30 * time.Minute
)

// Cached serves repeated analyses of identical content from an in-memory
// LRU. Only successful results are stored, so failures are always retried
// against the service. The cache lives for the process only.
type Cached struct {
	next    Analyzer
	cache   *expirable.LRU[string, types.AnalysisResult]
	metrics *metrics.Metrics
}

// NewCached wraps next. A size of zero or less uses DefaultCacheSize; a
// non-positive ttl uses DefaultCacheTTL. m may be nil.
func NewCached(next Analyzer, size int, ttl time.Duration, m *metrics.Metrics) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		next:    next,
		cache:   expirable.NewLRU[string, types.AnalysisResult](size, nil, ttl),
		metrics: m,
	}
}

// Analyze returns a cached result for the same payload, MIME type and
// prompt, or calls through and caches a success.
func (c *Cached) Analyze(ctx context.Context, req Request) (types.AnalysisResult, error) {
	key := cacheKey(req)
	if result, ok := c.cache.Get(key); ok {
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return cloneResult(result), nil
	}
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}

	result, err := c.next.Analyze(ctx, req)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	c.cache.Add(key, cloneResult(result))
	return result, nil
}

// Len reports the number of cached results.
func (c *Cached) Len() int {
	return c.cache.Len()
}

func cacheKey(req Request) string {
	h := blake3.New()
	h.Write([]byte(req.MimeType))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write([]byte(req.Data))
	return hex.EncodeToString(h.Sum(nil))
}

func cloneResult(r types.AnalysisResult) types.AnalysisResult {
	out := r
	out.Keywords = append([]string(nil), r.Keywords...)
	if r.TechnicalDetails != nil {
		out.TechnicalDetails = make(map[string]any, len(r.TechnicalDetails))
		for k, v := range r.TechnicalDetails {
			out.TechnicalDetails[k] = v
		}
	}
	return out
}
