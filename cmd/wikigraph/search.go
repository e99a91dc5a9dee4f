package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/orchestrator"
	"gitlab.com/rangulvers/wikigraph/internal/pathfind"
	"gitlab.com/rangulvers/wikigraph/internal/progress"
	"gitlab.com/rangulvers/wikigraph/internal/segment"
	"gitlab.com/rangulvers/wikigraph/internal/store"
	"gitlab.com/rangulvers/wikigraph/internal/wikipedia"
)

const searchWallClockBudget = 300 * time.Second

// SearchCommand runs one top-level search (§4.7) and prints its result as
// JSON to stdout, streaming progress events to stderr as they arrive.
//
//nolint:lll
type SearchCommand struct {
	Start        string  `arg:"" help:"Start article title or free-text query."`
	End          string  `arg:"" help:"End article title or free-text query."`
	MaxPaths     int     `default:"${defaultMaxPaths}"     help:"Number of diverse paths to return (1-5). Default: ${defaultMaxPaths}."           name:"max-paths"`
	MinDiversity float64 `default:"${defaultMinDiversity}" help:"Minimum Jaccard distance between diverse paths. Default: ${defaultMinDiversity}." name:"min-diversity"`
}

func (c *SearchCommand) Run(globals *Globals) errors.E {
	ctx, cancel := context.WithTimeout(context.Background(), searchWallClockBudget)
	defer cancel()

	client := wikipedia.NewClient(wikipedia.Config{
		Site:              globals.Wikipedia.Site,
		UserAgent:         globals.Wikipedia.UserAgent,
		RequestsPerSecond: globals.Wikipedia.RequestsPerSecond,
	}, globals.Log)

	resolveCache, err := wikipedia.NewResolveCache(client, 0)
	if err != nil {
		return errors.WithStack(err)
	}

	dbpool, errE := store.InitPostgres(ctx, globals.Postgres.URL.String(), globals.Log)
	if errE != nil {
		return errE
	}
	defer dbpool.Close()

	segStore := segment.NewPostgresStore(dbpool, globals.Log)
	cache, errE := segment.NewCache(segStore, globals.CacheSize, globals.Log)
	if errE != nil {
		return errE
	}
	if errE := cache.Warm(ctx); errE != nil {
		globals.Log.Warn().Err(errE).Msg("segment cache warm-up failed, continuing with a cold cache")
	}

	engine := pathfind.NewEngine(client, pathfind.Config{}, globals.Log)
	orch := orchestrator.New(resolveCache, cache, engine, client, globals.Log)

	stream := progress.NewStream(progress.MinCapacity)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			event, ok := stream.Next(ctx)
			if !ok {
				return
			}
			if event.Kind == progress.KindDone {
				return
			}
			line, err := json.Marshal(event)
			if err != nil {
				continue
			}
			os.Stderr.Write(append(line, '\n')) //nolint:errcheck
		}
	}()

	result, errE := orch.Search(ctx, orchestrator.Request{
		StartTerm:    c.Start,
		EndTerm:      c.End,
		K:            c.MaxPaths,
		MinDiversity: c.MinDiversity,
	}, stream)
	stream.Close()
	<-done

	if errE != nil {
		return errE
	}

	out, err := json.MarshalIndent(searchOutput{
		Success:      true,
		Path:         result.Path,
		Alternatives: result.Alternatives,
		Hops:         len(result.Path) - 1,
		HitType:      result.HitType,
	}, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	os.Stdout.Write(append(out, '\n')) //nolint:errcheck
	return nil
}

type searchOutput struct {
	Success      bool       `json:"success"`
	Path         []string   `json:"path"`
	Alternatives [][]string `json:"paths,omitempty"`
	Hops         int        `json:"hops"`
	HitType      string     `json:"hit_type"`
}
