// Package vars holds the execution context: the ordered variable bindings
// scoped to a single workflow run.
package vars

import "sort"

// Context maps variable names to values for one run. Names are unique;
// later writes overwrite in place, keeping the name's original position.
// Iteration order is first-insertion order. A Context is exclusively owned
// by its run and is not safe for concurrent use.
type Context struct {
	keys   []string
	values map[string]any
}

// New returns an empty context.
func New() *Context {
	return &Context{values: make(map[string]any)}
}

// FromMap seeds a context from initial variables. Map iteration order is
// not stable, so names are inserted sorted to keep runs deterministic.
func FromMap(init map[string]any) *Context {
	c := New()
	names := make([]string, 0, len(init))
	for name := range init {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.Set(name, init[name])
	}
	return c
}

// Set binds value under name, overwriting any existing binding.
func (c *Context) Set(name string, value any) {
	if _, exists := c.values[name]; !exists {
		c.keys = append(c.keys, name)
	}
	c.values[name] = value
}

// Get returns the value bound to name.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Has reports whether name is bound.
func (c *Context) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Names returns the bound names in insertion order.
func (c *Context) Names() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of bindings.
func (c *Context) Len() int {
	return len(c.keys)
}

// Snapshot returns an independent map copy of the bindings, deep-copying
// nested maps and slices. Used as the scope for expression evaluation and
// for archived run records.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.keys))
	for _, name := range c.keys {
		out[name] = copyValue(c.values[name])
	}
	return out
}

// Clone returns an independent copy of the context. Sub-workflow runs
// receive a clone, never a reference, so parent and child cannot race on
// shared structures.
func (c *Context) Clone() *Context {
	out := &Context{
		keys:   make([]string, len(c.keys)),
		values: make(map[string]any, len(c.keys)),
	}
	copy(out.keys, c.keys)
	for name, value := range c.values {
		out.values[name] = copyValue(value)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
