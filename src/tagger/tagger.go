// Package tagger wraps the kid3-cli tagging tool. It is the last step of a
// download: only after tagging succeeds is a track folded into history.
package tagger

import (
	"context"
	"fmt"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

type Tagger struct {
	Bin string
}

func New(c cfg.CleanupConfig) *Tagger {
	return &Tagger{Bin: c.TaggerBin}
}

// Apply writes the metadata record, including the recommendation marker
// comment, into the file's tags.
func (t *Tagger) Apply(ctx context.Context, path string, meta models.Metadata) error {
	args := []string{"-c", fmt.Sprintf("set comment %q", meta.Comment)}
	if meta.Artist != "" {
		args = append(args, "-c", fmt.Sprintf("set artist %q", meta.Artist))
	}
	if meta.Title != "" {
		args = append(args, "-c", fmt.Sprintf("set title %q", meta.Title))
	}
	if meta.Album != "" {
		args = append(args, "-c", fmt.Sprintf("set album %q", meta.Album))
	}
	if meta.ReleaseDate != "" {
		args = append(args, "-c", fmt.Sprintf("set date %q", meta.ReleaseDate))
	}
	if meta.MBID != "" {
		args = append(args, "-c", fmt.Sprintf("set musicBrainzId %q", meta.MBID))
	}
	args = append(args, path)

	if _, err := util.ExecUtility(ctx, "", t.Bin, args...); err != nil {
		return fmt.Errorf("failed to tag %s: %s", path, err.Error())
	}
	return nil
}

// StripComment clears the recommendation marker, releasing the track from
// automated cleanup.
func (t *Tagger) StripComment(ctx context.Context, path string) error {
	if _, err := util.ExecUtility(ctx, "", t.Bin, "-c", `set comment ""`, path); err != nil {
		return fmt.Errorf("failed to clear comment on %s: %s", path, err.Error())
	}
	return nil
}
