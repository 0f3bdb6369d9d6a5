package cache

import (
	"context"
	"time"
)

// Cell memoizes a single value for a bounded lifetime. A read within the
// lifetime returns the cached value with no side effect; a read after the
// lifetime recomputes through the stored refresh function.
//
// Cell is not safe for concurrent use. Callers that share a Cell across
// goroutines must provide their own synchronization; nothing here locks.
type Cell[T any] struct {
	value      T
	populated  bool
	lastUpdate time.Time
	lifetime   time.Duration
	refresh    func(ctx context.Context) (T, error)
}

// NewCell creates an empty cell. The first Value call populates it.
func NewCell[T any](lifetime time.Duration, refresh func(ctx context.Context) (T, error)) *Cell[T] {
	return &Cell[T]{
		lifetime: lifetime,
		refresh:  refresh,
	}
}

// Value returns the cached value, recomputing it only when the lifetime has
// elapsed since the last update. A failed refresh leaves the previous value
// in place.
func (c *Cell[T]) Value(ctx context.Context) (T, error) {
	if c.Fresh() {
		return c.value, nil
	}
	return c.Refresh(ctx)
}

// LastValue returns the last known value without ever triggering a refresh,
// along with whether the cell has been populated at all. High-frequency
// callers that cannot afford a recompute use this and fall back themselves.
func (c *Cell[T]) LastValue() (T, bool) {
	return c.value, c.populated
}

// Refresh recomputes the value regardless of age.
func (c *Cell[T]) Refresh(ctx context.Context) (T, error) {
	value, err := c.refresh(ctx)
	if err != nil {
		return c.value, err
	}
	c.Store(value)
	return value, nil
}

// Store sets the value directly and restarts the lifetime window. Used when
// a caller has just computed the value as part of a larger operation.
func (c *Cell[T]) Store(value T) {
	c.value = value
	c.populated = true
	c.lastUpdate = time.Now()
}

// Fresh reports whether the cached value is still within its lifetime.
func (c *Cell[T]) Fresh() bool {
	return c.populated && time.Since(c.lastUpdate) <= c.lifetime
}

// Reset discards the cached value so the next read refreshes.
func (c *Cell[T]) Reset() {
	var zero T
	c.value = zero
	c.populated = false
	c.lastUpdate = time.Time{}
}
