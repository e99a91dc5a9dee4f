package segment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rangulvers/wikigraph/internal/segment"
)

func TestNewComputesEndpointsAndHops(t *testing.T) {
	seg, errE := segment.New([]string{"Cat", "Mammal", "Dog"})
	require.NoError(t, errE)
	assert.Equal(t, "cat", seg.StartNormalized)
	assert.Equal(t, "dog", seg.EndNormalized)
	assert.Equal(t, 2, seg.Hops)
	assert.Equal(t, []string{"Cat", "Mammal", "Dog"}, seg.Path)
}

func TestNewRejectsShortPath(t *testing.T) {
	_, errE := segment.New([]string{"Cat"})
	require.Error(t, errE)
	assert.ErrorIs(t, errE, segment.ErrInvalidSegment)
}

func TestNewRejectsDuplicateTitle(t *testing.T) {
	_, errE := segment.New([]string{"Cat", "Mammal", "cat"})
	require.Error(t, errE)
	assert.ErrorIs(t, errE, segment.ErrInvalidSegment)
}

func TestCloneIsIndependent(t *testing.T) {
	seg, errE := segment.New([]string{"Cat", "Dog"})
	require.NoError(t, errE)

	clone := seg.Clone()
	clone.Path[0] = "Mutated"
	assert.Equal(t, "Cat", seg.Path[0])
}

func TestSubSegments(t *testing.T) {
	seg, errE := segment.New([]string{"A", "B", "C", "D"})
	require.NoError(t, errE)

	subs := seg.SubSegments(1, 2)
	var paths [][]string
	for _, s := range subs {
		paths = append(paths, s.Path)
	}
	assert.Contains(t, paths, []string{"A", "B"})
	assert.Contains(t, paths, []string{"B", "C"})
	assert.Contains(t, paths, []string{"C", "D"})
	assert.Contains(t, paths, []string{"A", "B", "C"})
	assert.Contains(t, paths, []string{"B", "C", "D"})
	assert.NotContains(t, paths, []string{"A", "B", "C", "D"})
}
