package expressions

import "sync"

// progCache memoizes compiled programs by expression text. Guards repeat on
// every state entry, so each engine compiles an expression once per process.
type progCache[T any] struct {
	mu       sync.RWMutex
	programs map[string]T
}

func newProgCache[T any]() *progCache[T] {
	return &progCache[T]{programs: make(map[string]T)}
}

// lookup returns the cached program for expression, building it on a miss.
// Compilation runs outside the lock; concurrent misses may compile the same
// expression twice and the cache keeps one, which is harmless because
// compilation is deterministic.
func (c *progCache[T]) lookup(expression string, build func(string) (T, error)) (T, error) {
	c.mu.RLock()
	p, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := build(expression)
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.programs[expression] = p
	c.mu.Unlock()
	return p, nil
}

func (c *progCache[T]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}
