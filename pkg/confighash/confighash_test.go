package confighash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleA struct {
	Name    string
	Version int
	Tags    []string
}

type sampleB struct {
	Version int
	Tags    []string
	Name    string
}

func TestHashIsStableAcrossFieldOrder(t *testing.T) {
	a := sampleA{Name: "x", Version: 1, Tags: []string{"a", "b"}}
	b := sampleB{Version: 1, Tags: []string{"a", "b"}, Name: "x"}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestHashChangesWithContent(t *testing.T) {
	h1, err := Hash(sampleA{Name: "x", Version: 1})
	require.NoError(t, err)
	h2, err := Hash(sampleA{Name: "x", Version: 2})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestChangedTreatsEmptyAsUnknown(t *testing.T) {
	assert.False(t, Changed("", "abc"))
	assert.False(t, Changed("abc", ""))
	assert.True(t, Changed("abc", "def"))
	assert.False(t, Changed("abc", "abc"))
}
