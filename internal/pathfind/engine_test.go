package pathfind_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/pathfind"
)

// graphFetcher is a fixed directed graph used to exercise the engine
// without a live Wikipedia Client. Inbound links are derived from outbound.
type graphFetcher struct {
	out map[string][]string
}

func newGraphFetcher(out map[string][]string) *graphFetcher {
	return &graphFetcher{out: out}
}

func (g *graphFetcher) OutboundLinks(_ context.Context, t string) ([]string, errors.E) {
	return g.out[t], nil
}

func (g *graphFetcher) InboundLinks(_ context.Context, t string, limit int) ([]string, errors.E) {
	var in []string
	for source, targets := range g.out {
		for _, target := range targets {
			if target == t {
				in = append(in, source)
			}
		}
	}
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in, nil
}

func TestSearchSamePage(t *testing.T) {
	engine := pathfind.NewEngine(newGraphFetcher(nil), pathfind.Config{}, zerolog.Nop())
	path, errE := engine.Search(context.Background(), "Cat", "Cat", nil)
	require.NoError(t, errE)
	assert.Equal(t, []string{"Cat"}, path)
}

func TestSearchDirectEdge(t *testing.T) {
	graph := map[string][]string{
		"Cat": {"Dog"},
	}
	engine := pathfind.NewEngine(newGraphFetcher(graph), pathfind.Config{}, zerolog.Nop())
	path, errE := engine.Search(context.Background(), "Cat", "Dog", nil)
	require.NoError(t, errE)
	assert.Equal(t, []string{"Cat", "Dog"}, path)
}

func TestSearchMultiHop(t *testing.T) {
	graph := map[string][]string{
		"Cat":    {"Mammal"},
		"Mammal": {"Animal"},
		"Animal": {"Organism"},
	}
	engine := pathfind.NewEngine(newGraphFetcher(graph), pathfind.Config{}, zerolog.Nop())
	path, errE := engine.Search(context.Background(), "Cat", "Organism", nil)
	require.NoError(t, errE)
	assert.Equal(t, []string{"Cat", "Mammal", "Animal", "Organism"}, path)
}

func TestSearchMeetsInMiddle(t *testing.T) {
	graph := map[string][]string{
		"Cat":    {"Mammal"},
		"Mammal": {"Animal"},
		"Animal": {"Dog"},
	}
	engine := pathfind.NewEngine(newGraphFetcher(graph), pathfind.Config{}, zerolog.Nop())
	path, errE := engine.Search(context.Background(), "Cat", "Dog", nil)
	require.NoError(t, errE)
	assert.Equal(t, "Cat", path[0])
	assert.Equal(t, "Dog", path[len(path)-1])
	assert.Contains(t, path, "Animal")
}

func TestSearchNoPath(t *testing.T) {
	graph := map[string][]string{
		"Cat": {"Mammal"},
	}
	engine := pathfind.NewEngine(newGraphFetcher(graph), pathfind.Config{MaxTotalDepth: 2}, zerolog.Nop())
	_, errE := engine.Search(context.Background(), "Cat", "Giraffe", nil)
	require.Error(t, errE)
	assert.ErrorIs(t, errE, pathfind.ErrNoPath)
}

func TestSearchRespectsDepthCap(t *testing.T) {
	graph := map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"D"},
		"D": {"E"},
		"E": {"F"},
	}
	engine := pathfind.NewEngine(newGraphFetcher(graph), pathfind.Config{MaxTotalDepth: 1}, zerolog.Nop())
	_, errE := engine.Search(context.Background(), "A", "F", nil)
	require.Error(t, errE)
	assert.ErrorIs(t, errE, pathfind.ErrNoPath)
}
