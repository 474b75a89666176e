package discovery

import (
	"context"
	"fmt"
	"log/slog"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

// stationBase is the player endpoint backing the Last.fm web radio. The
// documented API has no recommendations method, so this is what there is.
const stationBase = "https://www.last.fm"

type Station struct {
	Playlist []struct {
		Name    string `json:"name"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
	} `json:"playlist"`
}

type LastFM struct {
	HttpClient *util.HttpClient
	cfg        cfg.Lastfm
	baseURL    string
}

func NewLastFM(cfg cfg.Lastfm, httpClient *util.HttpClient) *LastFM {
	return &LastFM{
		cfg:        cfg,
		HttpClient: httpClient,
		baseURL:    stationBase,
	}
}

func (c *LastFM) Source() models.Source {
	return models.SourceLastFM
}

func (c *LastFM) QueryTracks(ctx context.Context) ([]models.Track, error) {
	headers := map[string]string{
		"Referer":    "https://www.last.fm/",
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3",
	}

	body, err := c.HttpClient.MakeRequest(ctx, "GET", fmt.Sprintf("%s/player/station/user/%s/recommended", c.baseURL, c.cfg.User), nil, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to get Last.fm recommendations: %s", err.Error())
	}

	var station Station
	if err := util.ParseResp(body, &station); err != nil {
		return nil, fmt.Errorf("failed to get Last.fm recommendations: %s", err.Error())
	}

	tracks := make([]models.Track, 0, len(station.Playlist))
	for _, entry := range station.Playlist {
		if entry.Name == "" || len(entry.Artists) == 0 || entry.Artists[0].Name == "" {
			slog.Warn("skipping malformed station entry", "title", entry.Name)
			continue
		}
		tracks = append(tracks, models.Track{
			Source: models.SourceLastFM,
			Artist: entry.Artists[0].Name,
			Title:  entry.Name,
		})
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no recommendations found from Last.fm")
	}
	return tracks, nil
}
