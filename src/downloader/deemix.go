package downloader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

var audioExts = []string{".mp3", ".flac", ".m4a", ".aac", ".ogg", ".opus", ".wma"}

type Deemix struct {
	Bin         string
	DownloadDir string
}

func NewDeemix(cfg *cfg.DownloadConfig) *Deemix {
	return &Deemix{
		Bin:         cfg.DeemixBin,
		DownloadDir: cfg.DownloadDir,
	}
}

func (c *Deemix) Name() string {
	return "deemix"
}

// Fetch downloads through the deemix CLI. deemix only takes Deezer URLs, so
// tracks must have been enriched with one; the completed path is read from
// stdout, with a directory scan as fallback.
func (c *Deemix) Fetch(ctx context.Context, track models.Track) (string, error) {
	if track.OriginURL == "" {
		return "", fmt.Errorf("%w: deemix needs a deezer link for %s", util.ErrTerminal, track.String())
	}

	output, err := util.ExecUtility(ctx, c.DownloadDir, c.Bin, "-p", c.DownloadDir, track.OriginURL)
	if err != nil {
		return "", classifyOutput(err, output)
	}

	for _, line := range strings.Split(string(output), "\n") {
		if after, found := strings.CutPrefix(line, "Completed download of "); found {
			rel := strings.TrimPrefix(strings.TrimSpace(after), "/")
			return filepath.Join(c.DownloadDir, rel), nil
		}
	}
	return locateDownload(c.DownloadDir, track)
}

// locateDownload scans the download dir for what the backend produced: the
// album directory for album jobs, otherwise an audio file whose name carries
// both the artist and the title.
func locateDownload(dir string, track models.Track) (string, error) {
	artist := sanitizeName(track.Artist)
	want := sanitizeName(track.Title)
	if track.IsAlbum {
		want = sanitizeName(track.Album)
	}

	var match string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || match != "" {
			return err
		}
		name := sanitizeName(d.Name())
		if track.IsAlbum {
			if d.IsDir() && path != dir && containsLower(name, want) {
				match = path
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && slices.Contains(audioExts, strings.ToLower(filepath.Ext(d.Name()))) &&
			containsLower(name, artist) && containsLower(name, want) {
			match = path
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: scanning downloads: %s", util.ErrTransient, err.Error())
	}
	if match == "" {
		return "", fmt.Errorf("%w: no downloaded file found for %s", util.ErrTerminal, track.String())
	}
	return match, nil
}
