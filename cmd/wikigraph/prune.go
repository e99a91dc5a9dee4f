package main

import (
	"context"
	"time"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/segment"
	"gitlab.com/rangulvers/wikigraph/internal/store"
)

// PruneCommand runs the segment table's background retention policy
// (§3 Lifecycle): delete entries older than MaxAge, then cap the table at
// Cap most-recently-used rows.
//
//nolint:lll
type PruneCommand struct {
	MaxAge time.Duration `default:"${defaultPruneMaxAge}" help:"Delete segments unused for longer than this. Default: ${defaultPruneMaxAge}."`
	Cap    int           `default:"${defaultPruneCap}"    help:"Maximum segment rows to retain after age-based deletion. Default: ${defaultPruneCap}."`
}

func (c *PruneCommand) Run(globals *Globals) errors.E {
	ctx := context.Background()

	dbpool, errE := store.InitPostgres(ctx, globals.Postgres.URL.String(), globals.Log)
	if errE != nil {
		return errE
	}
	defer dbpool.Close()

	segStore := segment.NewPostgresStore(dbpool, globals.Log)
	if errE := segStore.Prune(ctx, c.MaxAge, c.Cap); errE != nil {
		return errE
	}

	globals.Log.Info().Dur("maxAge", c.MaxAge).Int("cap", c.Cap).Msg("segment store pruned")
	return nil
}
