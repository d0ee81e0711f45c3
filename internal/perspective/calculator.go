package perspective

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Calculator memoizes Table results. Inputs are small comparable values, so
// they key the cache directly.
type Calculator struct {
	cache  *lru.Cache[Input, []Point]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewCalculator(size int) (*Calculator, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[Input, []Point](size)
	if err != nil {
		return nil, err
	}
	return &Calculator{cache: c}, nil
}

// Table is perspective.Table with caching. The returned slice is shared; callers
// must not modify it.
func (c *Calculator) Table(in Input) ([]Point, error) {
	if rows, ok := c.cache.Get(in); ok {
		c.hits.Add(1)
		return rows, nil
	}
	c.misses.Add(1)
	rows, err := Table(in)
	if err != nil {
		return nil, err
	}
	c.cache.Add(in, rows)
	return rows, nil
}

func (c *Calculator) Hits() uint64   { return c.hits.Load() }
func (c *Calculator) Misses() uint64 { return c.misses.Load() }
