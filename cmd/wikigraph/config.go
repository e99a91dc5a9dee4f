// Command wikigraph is the command-line entrypoint wiring the Wikipedia
// client, segment store/cache, and bidirectional BFS engine into the
// cache-aware orchestrator (§4.7). It is intentionally thin: the HTTP/SSE
// front end, request validation, and request history are external
// collaborators out of scope for this package (§1).
package main

import (
	"github.com/alecthomas/kong"
	"gitlab.com/tozd/go/cli"
	"gitlab.com/tozd/go/zerolog"
)

const (
	// DefaultSite is the MediaWiki host queried for links and resolution.
	DefaultSite = "en.wikipedia.org"
	// DefaultUserAgent identifies this application on every remote request.
	DefaultUserAgent = "wikigraph/0.1 (https://gitlab.com/rangulvers/wikigraph)"
	// DefaultRequestsPerSecond bounds the Wikipedia client's shared pool.
	DefaultRequestsPerSecond = 10.0
	// DefaultCacheSize is the segment cache's LRU capacity.
	DefaultCacheSize = 10000
	// DefaultMaxPaths is the default number of diverse paths to return.
	DefaultMaxPaths = 1
	// DefaultMinDiversity is the default Jaccard-distance admission threshold.
	DefaultMinDiversity = 0.3
	// DefaultPruneMaxAge is how long an unused segment survives Prune.
	DefaultPruneMaxAge = "720h"
	// DefaultPruneCap caps the segment table after age-based deletion.
	DefaultPruneCap = 100000
)

// PostgresConfig configures the connection to the segment store's backing
// database, mirroring the teacher's file-backed secret convention.
//
//nolint:lll
type PostgresConfig struct {
	URL kong.FileContentFlag `env:"URL_PATH" help:"File with PostgreSQL database URL. Environment variable: ${env}." placeholder:"PATH" required:"" short:"d"`
}

// WikipediaConfig configures the remote MediaWiki client (§4.1, §6).
//
//nolint:lll
type WikipediaConfig struct {
	Site              string  `default:"${defaultSite}"              help:"MediaWiki host to query. Default: ${defaultSite}."                           placeholder:"HOST"`
	UserAgent         string  `default:"${defaultUserAgent}"         help:"User-Agent header sent on every request."                                    placeholder:"STRING"`
	RequestsPerSecond float64 `default:"${defaultRequestsPerSecond}" help:"Upper bound on requests/second issued to the Wikipedia API. Default: ${defaultRequestsPerSecond}."`
}

// Globals describes top-level (global) flags shared by every command.
//
//nolint:lll
type Globals struct {
	zerolog.LoggingConfig `yaml:",inline"`

	Version kong.VersionFlag `help:"Show program's version and exit."                                              short:"V" yaml:"-"`
	Config  cli.ConfigFlag   `help:"Load configuration from a JSON or YAML file." name:"config" placeholder:"PATH" short:"c" yaml:"-"`

	Postgres  PostgresConfig  `embed:"" envprefix:"POSTGRES_"  prefix:"postgres."  yaml:"postgres"`
	Wikipedia WikipediaConfig `embed:"" envprefix:"WIKIPEDIA_" prefix:"wikipedia." yaml:"wikipedia"`

	CacheSize int `default:"${defaultCacheSize}" help:"Segment cache LRU capacity. Default: ${defaultCacheSize}." yaml:"cacheSize"`
}

// Config is the root command, used both to drive application logic and as
// the schema for Kong's command-line and YAML/JSON configuration parsing.
type Config struct {
	Globals `yaml:",inline"`

	Search SearchCommand `cmd:"" default:"withargs" help:"Find a hyperlink path between two Wikipedia articles." yaml:"search"`
	Prune  PruneCommand  `cmd:""                    help:"Delete stale segments from the segment store."         yaml:"prune"`
}
