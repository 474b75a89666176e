package config

import (
	"fmt"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

type Flags struct {
	CfgPath     string
	Source      string
	Bypass      bool
	CleanupOnly bool
	User        string
}

var validSources = []string{"all", "listenbrainz", "lastfm", "llm", "fresh_releases", "links"}

func GetFlags() (Flags, error) {
	var flags Flags

	flag.StringVarP(&flags.CfgPath, "config", "c", ".env", "Path of the configuration file")
	flag.StringVarP(&flags.Source, "source", "s", "all", "Recommendation source to process (all, listenbrainz, lastfm, llm, fresh_releases, links)")
	flag.BoolVar(&flags.Bypass, "bypass-playlist-check", false, "Reprocess sources even when their playlist fingerprint is unchanged")
	flag.BoolVar(&flags.CleanupOnly, "cleanup", false, "Only run the rating-driven library cleanup and feedback pass")
	flag.StringVarP(&flags.User, "user", "u", "", "Run for this user instead of TRACKDROP_USER")
	flag.Parse()

	if !slices.Contains(validSources, flags.Source) {
		return flags, fmt.Errorf("flag validation error: invalid source %s (must be one of: %s)",
			flags.Source, strings.Join(validSources, ", "))
	}
	return flags, nil
}
