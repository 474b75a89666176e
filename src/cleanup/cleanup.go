// Package cleanup walks the library tracks still tagged with a
// recommendation marker and turns their current rating into an action:
// delete, or keep and release from automated management. The mapping is a
// pure function of the rating, re-derived on every run, which makes cleanup
// idempotent after any partial failure.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	cfg "trackdrop/src/config"
	"trackdrop/src/debug"
	"trackdrop/src/feedback"
	"trackdrop/src/models"
)

// Decision is what a rating maps to.
type Decision struct {
	Delete   bool
	Strip    bool // clear the recommendation comment
	Feedback *feedback.Polarity
}

var (
	negative = feedback.Negative
	positive = feedback.Positive
)

// Decide maps a 0-5 rating onto the cleanup action table. Unrated and
// low-rated tracks are deleted; 4-5 are kept and released; only the extremes
// 1 and 5 generate feedback.
func Decide(rating int) Decision {
	switch {
	case rating == 1:
		return Decision{Delete: true, Feedback: &negative}
	case rating <= 3:
		return Decision{Delete: true}
	case rating == 5:
		return Decision{Strip: true, Feedback: &positive}
	default: // 4
		return Decision{Strip: true}
	}
}

type Library interface {
	ListTagged(ctx context.Context) ([]models.LibraryTrack, error)
}

type Dispatcher interface {
	Supported(source models.Source) bool
	Submit(ctx context.Context, source models.Source, track models.LibraryTrack, polarity feedback.Polarity) error
}

type Tagger interface {
	StripComment(ctx context.Context, path string) error
}

type Cleaner struct {
	Library     Library
	Dispatcher  Dispatcher
	Tagger      Tagger
	LibraryRoot string
	Strict      bool // block delete/strip when feedback fails
}

type Summary struct {
	Deleted      int
	Kept         int
	FeedbackSent int
	Failed       int
}

func NewCleaner(c cfg.Config, library Library, dispatcher Dispatcher, tagger Tagger) *Cleaner {
	return &Cleaner{
		Library:     library,
		Dispatcher:  dispatcher,
		Tagger:      tagger,
		LibraryRoot: c.LibraryCfg.LibraryDir,
		Strict:      c.CleanupCfg.StrictFeedback,
	}
}

// Run processes every tagged track. Item failures are logged and counted,
// never aborting the batch; only failing to list the library at all is a
// run-level error.
func (c *Cleaner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	tracks, err := c.Library.ListTagged(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list tagged tracks: %s", err.Error())
	}
	log.Printf("[cleanup] processing %d tagged tracks", len(tracks))

	for _, track := range tracks {
		source, ok := models.SourceForMarker(track.Comment)
		if !ok {
			continue // human cleared the comment since listing
		}

		decision := Decide(track.Rating)

		if decision.Feedback != nil && c.Dispatcher.Supported(source) {
			if err := c.Dispatcher.Submit(ctx, source, track, *decision.Feedback); err != nil {
				slog.Warn("feedback failed", "source", string(source), "track", track.Artist+" - "+track.Title, "error", err.Error())
				if c.Strict {
					sum.Failed++
					continue
				}
			} else {
				sum.FeedbackSent++
			}
		}

		path := track.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.LibraryRoot, path)
		}

		switch {
		case decision.Delete:
			if err := c.deleteTrack(path); err != nil {
				log.Printf("[cleanup] failed to delete %s: %s", path, err.Error())
				sum.Failed++
				continue
			}
			log.Printf("[cleanup] deleted %s - %s (rating %d)", track.Artist, track.Title, track.Rating)
			sum.Deleted++

		case decision.Strip:
			if err := c.Tagger.StripComment(ctx, path); err != nil {
				log.Printf("[cleanup] failed to release %s: %s", path, err.Error())
				sum.Failed++
				continue
			}
			log.Printf("[cleanup] kept %s - %s (rating %d), comment cleared", track.Artist, track.Title, track.Rating)
			sum.Kept++
		}
	}
	return sum, nil
}

// deleteTrack removes the file and any directories the removal leaves empty,
// walking up to but never including the library root. A file already gone is
// a no-op, which keeps re-runs idempotent.
func (c *Cleaner) deleteTrack(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("already gone", debug.RuntimeAttr(path))
			return nil
		}
		return err
	}
	c.pruneEmptyDirs(filepath.Dir(path))
	return nil
}

func (c *Cleaner) pruneEmptyDirs(dir string) {
	root := filepath.Clean(c.LibraryRoot)
	for {
		dir = filepath.Clean(dir)
		if dir == root || dir == "." || dir == "/" || !within(root, dir) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func within(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel != "." && filepath.IsLocal(rel)
}
