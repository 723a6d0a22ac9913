package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_SetGet(t *testing.T) {
	c := New()
	c.Set("name", "Bob")
	c.Set("count", 3)

	v, ok := c.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Bob", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.True(t, c.Has("count"))
	assert.Equal(t, 2, c.Len())
}

func TestContext_InsertionOrder(t *testing.T) {
	c := New()
	c.Set("z", 1)
	c.Set("a", 2)
	c.Set("m", 3)

	assert.Equal(t, []string{"z", "a", "m"}, c.Names())
}

func TestContext_OverwriteKeepsPosition(t *testing.T) {
	c := New()
	c.Set("first", 1)
	c.Set("second", 2)
	c.Set("first", 10)

	assert.Equal(t, []string{"first", "second"}, c.Names())
	v, _ := c.Get("first")
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, c.Len())
}

func TestFromMap_SortedForDeterminism(t *testing.T) {
	c := FromMap(map[string]any{"beta": 2, "alpha": 1, "gamma": 3})
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, c.Names())
}

func TestContext_SnapshotIsIndependent(t *testing.T) {
	c := New()
	c.Set("nested", map[string]any{"k": "v"})

	snap := c.Snapshot()
	snap["nested"].(map[string]any)["k"] = "changed"

	v, _ := c.Get("nested")
	assert.Equal(t, "v", v.(map[string]any)["k"])
}

func TestContext_CloneDeepCopies(t *testing.T) {
	c := New()
	c.Set("list", []any{"a", map[string]any{"inner": 1}})
	c.Set("plain", "text")

	child := c.Clone()
	child.Set("plain", "modified")
	child.Get("list")

	list, _ := child.Get("list")
	list.([]any)[1].(map[string]any)["inner"] = 99

	orig, _ := c.Get("list")
	assert.Equal(t, 1, orig.([]any)[1].(map[string]any)["inner"])

	v, _ := c.Get("plain")
	assert.Equal(t, "text", v)
	assert.Equal(t, c.Names(), child.Names())
}
