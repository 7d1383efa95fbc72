package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/featsql/internal/cql"
	"github.com/roach88/featsql/internal/metrics"
	"github.com/roach88/featsql/internal/querysql"
)

// DefaultCacheSize is the default number of rendered statements kept.
const DefaultCacheSize = 512

// sqlCache memoizes rendered SQL by feature type, statement and parameters.
// A nil cache renders every time.
type sqlCache struct {
	lru     *lru.Cache[string, string]
	metrics *metrics.Metrics
}

func newSQLCache(size int, m *metrics.Metrics) (*sqlCache, error) {
	if size <= 0 {
		return &sqlCache{metrics: m}, nil
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create SQL cache: %w", err)
	}
	return &sqlCache{lru: c, metrics: m}, nil
}

// get returns the cached statement for key or renders and stores it.
func (c *sqlCache) get(key string, render func() (string, error)) (string, error) {
	if c.lru != nil {
		if sql, ok := c.lru.Get(key); ok {
			if c.metrics != nil {
				c.metrics.CacheHits.Inc()
			}
			return sql, nil
		}
	}
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}

	sql, err := render()
	if err != nil {
		return "", err
	}
	if c.lru != nil {
		c.lru.Add(key, sql)
	}
	return sql, nil
}

// Len returns the number of cached statements.
func (c *sqlCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// cacheKey identifies a statement: the feature type, the statement ("meta"
// or the table index) and every parameter that changes the rendering.
func cacheKey(typeName, statement string, p querysql.Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%d|%d|%t", typeName, statement, p.Limit, p.Offset, p.CountSkipped)
	for _, k := range p.SortKeys {
		fmt.Fprintf(&b, "|sk:%s:%t", k.Property, k.Descending)
	}
	if p.Filter != nil {
		b.WriteString("|f:" + cql.Text(p.Filter))
	}
	if p.MinKey != nil || p.MaxKey != nil {
		fmt.Fprintf(&b, "|k:%T:%v:%T:%v", p.MinKey, p.MinKey, p.MaxKey, p.MaxKey)
	}
	for _, name := range slices.Sorted(maps.Keys(p.VirtualTables)) {
		fmt.Fprintf(&b, "|vt:%s=%s", name, p.VirtualTables[name])
	}
	return b.String()
}
