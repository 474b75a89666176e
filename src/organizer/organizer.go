// Package organizer moves finished downloads into their canonical library
// location (artist/album/title) and hands them to the tagging collaborator.
// Placement and tagging are one unit: a track that placed but failed to tag
// is reported as failed so it never enters history.
package organizer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
)

const unknownAlbum = "Unknown Album"

var audioExts = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".aac": true,
	".ogg": true, ".opus": true, ".wma": true,
}

type Tagger interface {
	Apply(ctx context.Context, path string, meta models.Metadata) error
}

type Organizer struct {
	LibraryDir string
	Tagger     Tagger
}

func New(c cfg.LibraryConfig, tagger Tagger) *Organizer {
	return &Organizer{
		LibraryDir: c.LibraryDir,
		Tagger:     tagger,
	}
}

// Place moves a downloaded file (or album directory) into the library and
// tags it. It returns the final path; on any error the track must not be
// folded into history.
func (o *Organizer) Place(ctx context.Context, track models.Track, srcPath string) (string, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return "", fmt.Errorf("download vanished before placement: %s", err.Error())
	}

	if track.IsAlbum != info.IsDir() {
		return "", fmt.Errorf("backend produced %s where %s was expected for %s",
			kind(info.IsDir()), kind(track.IsAlbum), track.String())
	}

	if track.IsAlbum {
		return o.placeAlbum(ctx, track, srcPath)
	}
	return o.placeTrack(ctx, track, srcPath)
}

func (o *Organizer) placeTrack(ctx context.Context, track models.Track, srcPath string) (string, error) {
	album := track.Album
	if album == "" {
		album = unknownAlbum
	}
	destDir := filepath.Join(o.LibraryDir, safeName(track.Artist), safeName(album))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %s", destDir, err.Error())
	}

	dest := nextFree(destDir, safeName(track.Title), filepath.Ext(srcPath))
	if err := moveFile(srcPath, dest); err != nil {
		return "", err
	}

	if err := o.Tagger.Apply(ctx, dest, trackMetadata(track)); err != nil {
		return "", err
	}
	return dest, nil
}

// placeAlbum moves the whole directory, then tags each audio file inside it
// with the album-level metadata. Per-file titles are whatever the backend
// already wrote.
func (o *Organizer) placeAlbum(ctx context.Context, track models.Track, srcDir string) (string, error) {
	destDir := filepath.Join(o.LibraryDir, safeName(track.Artist))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %s", destDir, err.Error())
	}

	dest := nextFree(destDir, safeName(track.Album), "")
	if err := os.Rename(srcDir, dest); err != nil {
		if err := moveTree(srcDir, dest); err != nil {
			return "", err
		}
	}

	meta := trackMetadata(track)
	meta.Title = "" // keep the backend's per-file titles
	err := filepath.WalkDir(dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !audioExts[strings.ToLower(filepath.Ext(d.Name()))] {
			return err
		}
		return o.Tagger.Apply(ctx, path, meta)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func trackMetadata(track models.Track) models.Metadata {
	mbid := ""
	if track.Source == models.SourceListenBrainz || track.Source == models.SourceFreshRelease {
		mbid = track.ExternalID
	}
	return models.Metadata{
		Artist:      track.Artist,
		Title:       track.Title,
		Album:       track.Album,
		ReleaseDate: track.ReleaseDate,
		MBID:        mbid,
		Comment:     track.Source.Marker(),
	}
}

// nextFree returns base+ext inside dir, suffixing " (n)" until the name is
// unused.
func nextFree(dir, base, ext string) string {
	candidate := filepath.Join(dir, base+ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
	}
}

// moveFile renames, falling back to copy+remove when src and dest sit on
// different filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to move %s: %s", src, err.Error())
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to move %s: %s", src, err.Error())
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to move %s: %s", src, err.Error())
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to move %s: %s", src, err.Error())
	}
	return os.Remove(src)
}

func moveTree(src, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to move %s: %s", src, err.Error())
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to move %s: %s", src, err.Error())
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dest, entry.Name())
		if entry.IsDir() {
			if err := moveTree(from, to); err != nil {
				return err
			}
			continue
		}
		if err := moveFile(from, to); err != nil {
			return err
		}
	}
	return os.Remove(src)
}

var illegalName = regexp.MustCompile(`[<>:"/\\|?*\x00]`)

// safeName strips path separators and other characters filesystems reject.
func safeName(s string) string {
	cleaned := strings.TrimSpace(illegalName.ReplaceAllString(s, "_"))
	if cleaned == "" {
		return "_"
	}
	return cleaned
}

func kind(isDir bool) string {
	if isDir {
		return "a directory"
	}
	return "a file"
}
