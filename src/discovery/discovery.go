// Package discovery gathers track recommendations from the configured
// sources. Each client normalizes its payload into models.Track; the
// aggregator fetches enabled sources concurrently and keeps their failures
// isolated from each other.
package discovery

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

type SourceClient interface {
	Source() models.Source
	QueryTracks(ctx context.Context) ([]models.Track, error)
}

type Discoverer struct {
	clients []SourceClient
}

// NewDiscoverer wires up a client per enabled source. The LLM client reads
// recent listens through the ListenBrainz client, so enabling it without
// ListenBrainz credentials yields an empty prompt and an error at fetch time.
func NewDiscoverer(sources cfg.SourcesConfig, httpClient *util.HttpClient) *Discoverer {
	d := &Discoverer{}

	lb := NewListenBrainz(sources.Listenbrainz, httpClient)
	if sources.Listenbrainz.Enabled {
		d.clients = append(d.clients, lb)
	}
	if sources.Lastfm.Enabled {
		d.clients = append(d.clients, NewLastFM(sources.Lastfm, httpClient))
	}
	if sources.LLM.Enabled {
		d.clients = append(d.clients, NewLLM(sources.LLM, httpClient, lb.RecentListens))
	}
	if sources.Listenbrainz.Enabled && sources.Listenbrainz.FreshReleases {
		d.clients = append(d.clients, NewFreshReleases(lb))
	}
	if len(sources.Links) > 0 {
		d.clients = append(d.clients, NewLinks(sources.Links, httpClient))
	}
	return d
}

// Clients exposes the wired set, mainly for source filtering.
func (d *Discoverer) Clients() []SourceClient {
	return d.clients
}

// Discover queries every client concurrently. A failing source shows up in
// the error map and never blocks the others; the track map only holds sources
// that returned something.
func (d *Discoverer) Discover(ctx context.Context, only models.Source) (map[models.Source][]models.Track, map[models.Source]error) {
	tracks := make(map[models.Source][]models.Track)
	errs := make(map[models.Source]error)

	var mu sync.Mutex
	var wg errgroup.Group

	for _, client := range d.clients {
		if only != "" && client.Source() != only {
			continue
		}
		wg.Go(func() error {
			found, err := client.QueryTracks(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[client.Source()] = err
				return nil
			}
			log.Printf("[%s] found %d recommendations", client.Source(), len(found))
			tracks[client.Source()] = found
			return nil
		})
	}
	_ = wg.Wait() // failures are collected per source

	return tracks, errs
}
