package main

import (
	"strconv"

	"github.com/alecthomas/kong"
	"gitlab.com/tozd/go/cli"
	"gitlab.com/tozd/go/errors"
)

func main() {
	var config Config
	cli.Run(&config, kong.Vars{
		"defaultSite":              DefaultSite,
		"defaultUserAgent":         DefaultUserAgent,
		"defaultRequestsPerSecond": formatFloat(DefaultRequestsPerSecond),
		"defaultCacheSize":         strconv.Itoa(DefaultCacheSize),
		"defaultMaxPaths":          strconv.Itoa(DefaultMaxPaths),
		"defaultMinDiversity":      formatFloat(DefaultMinDiversity),
		"defaultPruneMaxAge":       DefaultPruneMaxAge,
		"defaultPruneCap":          strconv.Itoa(DefaultPruneCap),
	}, func(ctx *kong.Context) errors.E {
		return errors.WithStack(ctx.Run(&config.Globals))
	})
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
