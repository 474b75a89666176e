package downloader

import (
	"context"
	"fmt"
	"strings"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

// qualityLevels maps a profile name onto streamrip's numeric quality flag.
var qualityLevels = map[string]string{
	"mp3":   "1",
	"flac":  "2",
	"hires": "3",
}

type Streamrip struct {
	Bin         string
	DownloadDir string
	Quality     string
}

func NewStreamrip(cfg *cfg.DownloadConfig) *Streamrip {
	return &Streamrip{
		Bin:         cfg.StreamripBin,
		DownloadDir: cfg.DownloadDir,
		Quality:     cfg.Quality,
	}
}

func (c *Streamrip) Name() string {
	return "streamrip"
}

// Fetch downloads through the rip CLI. Enriched tracks carry a provider URL;
// anything else goes through catalog search on the first hit.
func (c *Streamrip) Fetch(ctx context.Context, track models.Track) (string, error) {
	args := []string{"--folder", c.DownloadDir, "--no-db"}
	if level, ok := qualityLevels[c.Quality]; ok {
		args = append(args, "--quality", level)
	}

	if track.OriginURL != "" {
		args = append(args, "url", track.OriginURL)
	} else if track.IsAlbum {
		args = append(args, "search", "--first", "deezer", "album", fmt.Sprintf("%s %s", track.Artist, track.Album))
	} else {
		args = append(args, "search", "--first", "deezer", "track", fmt.Sprintf("%s %s", track.Artist, track.Title))
	}

	output, err := util.ExecUtility(ctx, c.DownloadDir, c.Bin, args...)
	if err != nil {
		return "", classifyOutput(err, output)
	}
	return locateDownload(c.DownloadDir, track)
}

// classifyOutput folds provider push-back visible in CLI output into the
// error taxonomy so the scheduler can cool the backend down.
func classifyOutput(err error, output []byte) error {
	text := strings.ToLower(string(output))
	switch {
	case strings.Contains(text, "quota") || strings.Contains(text, "too many requests") || strings.Contains(text, "rate limit"):
		return fmt.Errorf("%w: %s", util.ErrQuota, err.Error())
	case strings.Contains(text, "not found") || strings.Contains(text, "no results"):
		return fmt.Errorf("%w: %s", util.ErrTerminal, err.Error())
	}
	return fmt.Errorf("%w: %s", util.ErrTransient, err.Error())
}
