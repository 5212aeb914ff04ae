package otelexport

import (
	"sync"
	"time"
)

// OverflowValue replaces attribute values past the cardinality limit.
const OverflowValue = "other"

const (
	cardinalityTTL      = 10 * time.Minute
	cardinalitySweepGap = 5 * time.Minute
)

// CardinalityLimiter bounds the distinct values each metric attribute may
// take. Values seen within the last ten minutes keep their slot; once a
// metric attribute holds limit values, new ones collapse to OverflowValue.
//
// Expired values are swept during CheckAndLimit, so the limiter owns no
// goroutine and needs no shutdown.
type CardinalityLimiter struct {
	limits map[string]int

	mu        sync.Mutex
	seen      map[string]map[string]time.Time // metric.attribute -> value -> last seen
	lastSweep time.Time
	now       func() time.Time
}

// NewCardinalityLimiter creates a limiter. limits maps an attribute key to
// the number of distinct values allowed per metric; attributes with no
// entry pass through unchanged.
func NewCardinalityLimiter(limits map[string]int) *CardinalityLimiter {
	return &CardinalityLimiter{
		limits: limits,
		seen:   make(map[string]map[string]time.Time),
		now:    time.Now,
	}
}

// CheckAndLimit returns value, or OverflowValue when value would push the
// attribute past its limit on metric.
func (c *CardinalityLimiter) CheckAndLimit(metric, attr, value string) string {
	limit, ok := c.limits[attr]
	if !ok {
		return value
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= cardinalitySweepGap {
		c.sweep(now)
	}

	key := metric + "." + attr
	values, ok := c.seen[key]
	if !ok {
		values = make(map[string]time.Time)
		c.seen[key] = values
	}

	if _, exists := values[value]; !exists && len(values) >= limit {
		return OverflowValue
	}
	values[value] = now
	return value
}

// sweep drops values not seen within the TTL. Callers hold mu.
func (c *CardinalityLimiter) sweep(now time.Time) {
	cutoff := now.Add(-cardinalityTTL)
	for key, values := range c.seen {
		for v, last := range values {
			if last.Before(cutoff) {
				delete(values, v)
			}
		}
		if len(values) == 0 {
			delete(c.seen, key)
		}
	}
	c.lastSweep = now
}

// CurrentCardinality returns the number of values currently holding a slot.
func (c *CardinalityLimiter) CurrentCardinality() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, values := range c.seen {
		total += len(values)
	}
	return total
}
