package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeReleasesInReverseOrder(t *testing.T) {
	var order []string
	s := NewScope(nil)
	for _, name := range []string{"device", "render pass", "pipeline"} {
		name := name
		s.Defer(name, func() { order = append(order, name) })
	}
	require.Equal(t, 3, s.Len())

	s.Release()
	assert.Equal(t, []string{"pipeline", "render pass", "device"}, order)
	assert.Equal(t, 0, s.Len())

	s.Release()
	assert.Len(t, order, 3)
}

func TestScopeAdopt(t *testing.T) {
	var order []string
	parent := NewScope(nil)
	parent.Defer("pool", func() { order = append(order, "pool") })

	child := NewScope(nil)
	child.Defer("fence", func() { order = append(order, "fence") })
	child.Defer("semaphore", func() { order = append(order, "semaphore") })

	parent.Adopt(child)
	assert.Equal(t, 0, child.Len())

	parent.Release()
	assert.Equal(t, []string{"semaphore", "fence", "pool"}, order)
}
