// Package dedup decides which candidate tracks are actually new, checking
// each batch against per-source download history, the live library and the
// batch itself.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"trackdrop/src/debug"
	"trackdrop/src/models"
)

type HistoryChecker interface {
	HasDownloaded(user string, source models.Source, track models.Track) (bool, error)
}

type LibraryChecker interface {
	Contains(ctx context.Context, track models.Track) (bool, error)
}

type Resolver struct {
	History HistoryChecker
	Library LibraryChecker
}

// Result carries the accepted batch plus skip counts for the run report.
type Result struct {
	Accepted         []models.Track
	SkippedHistory   int
	SkippedBatch     int
	SkippedInLibrary int
}

func NewResolver(history HistoryChecker, library LibraryChecker) *Resolver {
	return &Resolver{History: history, Library: library}
}

// Resolve walks the sources in fixed priority order so that a track
// recommended by two sources in the same run yields exactly one job,
// attributed to the higher-priority source. Order inside a source is
// preserved.
func (r *Resolver) Resolve(ctx context.Context, user string, batches map[models.Source][]models.Track) (Result, error) {
	var res Result
	seen := make(map[string][]models.Track) // dedup key -> accepted tracks

	for _, source := range models.Priority {
		for _, track := range batches[source] {
			if dup, err := r.inBatch(seen, track); err != nil {
				return res, err
			} else if dup {
				res.SkippedBatch++
				slog.Debug("dedup", debug.RuntimeAttr(fmt.Sprintf("[%s] %s already accepted this run", source, track)))
				continue
			}

			has, err := r.History.HasDownloaded(user, source, track)
			if err != nil {
				return res, fmt.Errorf("history check failed for %s: %s", track, err.Error())
			}
			if has {
				res.SkippedHistory++
				continue
			}

			present, err := r.Library.Contains(ctx, track)
			if err != nil {
				return res, fmt.Errorf("library check failed for %s: %s", track, err.Error())
			}
			if present {
				res.SkippedInLibrary++
				continue
			}

			key := track.Key()
			seen[key] = append(seen[key], track)
			res.Accepted = append(res.Accepted, track)
		}
	}
	return res, nil
}

func (r *Resolver) inBatch(seen map[string][]models.Track, track models.Track) (bool, error) {
	for _, accepted := range seen[track.Key()] {
		if accepted.Matches(track) {
			return true, nil
		}
	}
	return false, nil
}
