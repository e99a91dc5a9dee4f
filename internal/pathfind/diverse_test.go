package pathfind_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rangulvers/wikigraph/internal/pathfind"
)

func TestSearchKDiverseSamePage(t *testing.T) {
	engine := pathfind.NewEngine(newGraphFetcher(nil), pathfind.Config{}, zerolog.Nop())
	paths, errE := engine.SearchKDiverse(context.Background(), "Cat", "Cat", 3, 0, nil)
	require.NoError(t, errE)
	assert.Equal(t, [][]string{{"Cat"}}, paths)
}

func TestSearchKDiverseFindsMultipleRoutes(t *testing.T) {
	graph := map[string][]string{
		"Cat":    {"Mammal", "Pet"},
		"Mammal": {"Dog"},
		"Pet":    {"Dog"},
	}
	engine := pathfind.NewEngine(newGraphFetcher(graph), pathfind.Config{}, zerolog.Nop())
	paths, errE := engine.SearchKDiverse(context.Background(), "Cat", "Dog", 2, 0.1, nil)
	require.NoError(t, errE)
	assert.NotEmpty(t, paths)
	for i := 1; i < len(paths); i++ {
		assert.LessOrEqual(t, len(paths[i-1]), len(paths[i]))
	}
}

func TestSearchKDiverseNoPath(t *testing.T) {
	graph := map[string][]string{
		"Cat": {"Mammal"},
	}
	engine := pathfind.NewEngine(newGraphFetcher(graph), pathfind.Config{MaxTotalDepth: 2}, zerolog.Nop())
	_, errE := engine.SearchKDiverse(context.Background(), "Cat", "Giraffe", 3, 0, nil)
	require.Error(t, errE)
	assert.ErrorIs(t, errE, pathfind.ErrNoPath)
}
