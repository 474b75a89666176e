// Package run drives a complete per-user engine pass: rating-driven cleanup
// first, then source fetch, dedup, download, placement and history advance,
// finishing with a library scan and the recommendation playlist.
package run

import (
	"context"
	"fmt"
	"log"

	"trackdrop/src/cleanup"
	cfg "trackdrop/src/config"
	"trackdrop/src/dedup"
	"trackdrop/src/downloader"
	"trackdrop/src/history"
	"trackdrop/src/models"
)

type Discovery interface {
	Discover(ctx context.Context, only models.Source) (map[models.Source][]models.Track, map[models.Source]error)
}

type Enricher interface {
	Enrich(ctx context.Context, track *models.Track) error
}

type Scheduler interface {
	Schedule(ctx context.Context, tracks []models.Track) []*downloader.Job
	Sweep()
}

type Placer interface {
	Place(ctx context.Context, track models.Track, srcPath string) (string, error)
}

type Library interface {
	RefreshAndPlaylist(ctx context.Context, playlists map[string][]models.Track) error
}

type Cleaner interface {
	Run(ctx context.Context) (cleanup.Summary, error)
}

type HistoryStore interface {
	Changed(user string, source models.Source, fingerprint string, bypass bool) (bool, error)
	MarkDownloaded(user string, source models.Source, track models.Track) error
	Advance(user string, source models.Source, fingerprint string, newlyDownloaded []models.Track) error
}

// SourceReport is the per-source slice of the run summary.
type SourceReport struct {
	Found            int
	Downloaded       int
	SkippedUnchanged bool
	Failed           int
	Err              error
}

type Report struct {
	Cleanup cleanup.Summary
	Sources map[models.Source]*SourceReport

	Downloaded       int
	SkippedDuplicate int
	Failed           int
}

type Runner struct {
	Cfg       *cfg.Config
	Cleaner   Cleaner
	Discovery Discovery
	Enricher  Enricher
	Resolver  *dedup.Resolver
	Scheduler Scheduler
	Placer    Placer
	History   HistoryStore
	Library   Library
}

// flag values that differ from the Source enum spelling
var flagSources = map[string]models.Source{
	"all":            "",
	"":               "",
	"fresh_releases": models.SourceFreshRelease,
	"links":          models.SourceLink,
}

func onlySource(flag string) models.Source {
	if s, ok := flagSources[flag]; ok {
		return s
	}
	return models.Source(flag)
}

// Execute performs one engine pass for the configured user.
func (r *Runner) Execute(ctx context.Context) (*Report, error) {
	report := &Report{Sources: make(map[models.Source]*SourceReport)}
	user := r.Cfg.User().Name

	if r.Cfg.CleanupCfg.Enabled || r.Cfg.Flags.CleanupOnly {
		summary, err := r.Cleaner.Run(ctx)
		if err != nil {
			return report, fmt.Errorf("cleanup failed: %s", err.Error())
		}
		report.Cleanup = summary
	}
	if r.Cfg.Flags.CleanupOnly {
		return report, nil
	}

	batches, errs := r.Discovery.Discover(ctx, onlySource(r.Cfg.Flags.Source))
	for source, err := range errs {
		log.Printf("[%s] fetch failed: %s", source, err.Error())
		report.Sources[source] = &SourceReport{Err: err}
	}

	// fingerprint gate: sources whose batch is unchanged since the last
	// committed run are dropped before dedup
	fingerprints := make(map[models.Source]string)
	for source, tracks := range batches {
		sr := &SourceReport{Found: len(tracks)}
		report.Sources[source] = sr

		fp := history.Fingerprint(tracks)
		changed, err := r.History.Changed(user, source, fp, r.Cfg.Flags.Bypass)
		if err != nil {
			sr.Err = err
			delete(batches, source)
			continue
		}
		if !changed {
			log.Printf("[%s] batch unchanged since last run, skipping", source)
			sr.SkippedUnchanged = true
			delete(batches, source)
			continue
		}
		fingerprints[source] = fp
	}

	result, err := r.Resolver.Resolve(ctx, user, batches)
	if err != nil {
		return report, fmt.Errorf("dedup failed: %s", err.Error())
	}
	report.SkippedDuplicate = result.SkippedHistory + result.SkippedBatch + result.SkippedInLibrary

	for i := range result.Accepted {
		if err := r.Enricher.Enrich(ctx, &result.Accepted[i]); err != nil {
			log.Printf("[%s] enrichment failed for %s: %s", result.Accepted[i].Source, result.Accepted[i], err.Error())
		}
	}

	var jobs []*downloader.Job
	if len(result.Accepted) > 0 {
		jobs = r.Scheduler.Schedule(ctx, result.Accepted)
		defer r.Scheduler.Sweep()
	}

	placed := make(map[models.Source][]models.Track)
	for _, job := range jobs {
		sr := report.Sources[job.Track.Source]
		if sr == nil {
			sr = &SourceReport{}
			report.Sources[job.Track.Source] = sr
		}

		if job.State != downloader.StateSucceeded {
			log.Printf("[%s] download failed for %s: %s", job.Track.Source, job.Track, job.Err.Error())
			sr.Failed++
			report.Failed++
			continue
		}

		finalPath, err := r.Placer.Place(ctx, job.Track, job.Path)
		if err != nil {
			log.Printf("[%s] placement failed for %s: %s", job.Track.Source, job.Track, err.Error())
			sr.Failed++
			report.Failed++
			continue
		}
		log.Printf("[%s] added %s (%s)", job.Track.Source, job.Track, finalPath)

		// record each placement as it lands, so a later crash or interrupt
		// never re-downloads what already made it into the library
		if err := r.History.MarkDownloaded(user, job.Track.Source, job.Track); err != nil {
			log.Printf("[%s] failed to record download of %s: %s", job.Track.Source, job.Track, err.Error())
		}

		placed[job.Track.Source] = append(placed[job.Track.Source], job.Track)
		sr.Downloaded++
		report.Downloaded++
	}

	// commit each source only after its jobs have fully drained; an
	// interrupted run keeps the old fingerprints so the batches re-run
	if ctx.Err() != nil {
		log.Printf("run interrupted, keeping batch fingerprints for the next invocation")
		return report, ctx.Err()
	}
	for source, fp := range fingerprints {
		if err := r.History.Advance(user, source, fp, nil); err != nil {
			report.Sources[source].Err = err
			log.Printf("[%s] failed to commit history: %s", source, err.Error())
		}
	}

	playlists := make(map[string][]models.Track)
	for source, tracks := range placed {
		if len(tracks) > 0 {
			playlists[fmt.Sprintf(r.Cfg.LibraryCfg.PlaylistFmt, source.Display())] = tracks
		}
	}
	if len(playlists) > 0 {
		if err := r.Library.RefreshAndPlaylist(ctx, playlists); err != nil {
			log.Printf("[library] playlist refresh failed: %s", err.Error())
		}
	}
	return report, nil
}

// Log prints the run outcome in one place, per source.
func (r *Report) Log() {
	if r.Cleanup != (cleanup.Summary{}) {
		log.Printf("[cleanup] deleted %d, kept %d, feedback sent %d, failed %d",
			r.Cleanup.Deleted, r.Cleanup.Kept, r.Cleanup.FeedbackSent, r.Cleanup.Failed)
	}
	for source, sr := range r.Sources {
		switch {
		case sr.Err != nil:
			log.Printf("[%s] failed: %s", source, sr.Err.Error())
		case sr.SkippedUnchanged:
			log.Printf("[%s] unchanged", source)
		default:
			log.Printf("[%s] found %d, downloaded %d, failed %d", source, sr.Found, sr.Downloaded, sr.Failed)
		}
	}
	log.Printf("run done: %d downloaded, %d duplicates skipped, %d failed",
		r.Downloaded, r.SkippedDuplicate, r.Failed)
}
