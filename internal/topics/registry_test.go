package topics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(Topic{Name: "view-mapped"}, Topic{Name: "output-added"}, Topic{Name: "view-focused"})
	require.NoError(t, err)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"output-added", "view-focused", "view-mapped"}, r.Names())
	assert.True(t, r.Contains("view-focused"))
	assert.False(t, r.Contains("view-closed"))

	_, ok := r.Lookup("view-mapped")
	assert.True(t, ok)

	names := r.Names()
	names[0] = "mutated"
	assert.Equal(t, "output-added", r.Names()[0], "Names returns a copy")
}

func TestNewRegistryRejectsBadNames(t *testing.T) {
	_, err := NewRegistry(Topic{Name: "a"}, Topic{Name: "a"})
	assert.True(t, errors.Is(err, ErrDuplicateTopic))

	_, err = NewRegistry(Topic{Name: ""})
	assert.True(t, errors.Is(err, ErrEmptyTopicName))
}
