package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfg "trackdrop/src/config"
	"trackdrop/src/debug"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

type Playlists struct {
	Playlist []struct {
		Data struct {
			Date       time.Time `json:"date"`
			Identifier string    `json:"identifier"`
			Title      string    `json:"title"`
		} `json:"playlist"`
	} `json:"playlists"`
}

type Exploration struct {
	Playlist struct {
		Date       time.Time `json:"date"`
		Identifier string    `json:"identifier"`
		Title      string    `json:"title"`
		Tracks     []struct {
			Album      string   `json:"album"`
			Creator    string   `json:"creator"`
			Identifier []string `json:"identifier"`
			Title      string   `json:"title"`
		} `json:"track"`
	} `json:"playlist"`
}

type FreshReleasePayload struct {
	Payload struct {
		Releases []struct {
			ArtistCreditName string `json:"artist_credit_name"`
			ReleaseName      string `json:"release_name"`
			ReleaseDate      string `json:"release_date"`
			ReleaseMbid      string `json:"release_mbid"`
		} `json:"releases"`
		UserName string `json:"user_name"`
	} `json:"payload"`
}

type Listens struct {
	Payload struct {
		Listens []struct {
			TrackMetadata struct {
				ArtistName  string `json:"artist_name"`
				TrackName   string `json:"track_name"`
				ReleaseName string `json:"release_name"`
			} `json:"track_metadata"`
		} `json:"listens"`
	} `json:"payload"`
}

type ListenBrainz struct {
	HttpClient *util.HttpClient
	cfg        cfg.Listenbrainz
}

func NewListenBrainz(cfg cfg.Listenbrainz, httpClient *util.HttpClient) *ListenBrainz {
	return &ListenBrainz{
		cfg:        cfg,
		HttpClient: httpClient,
	}
}

func (c *ListenBrainz) Source() models.Source {
	return models.SourceListenBrainz
}

// QueryTracks returns this week's Weekly Exploration playlist. Tracks keep
// their recording MBID so feedback can be submitted later.
func (c *ListenBrainz) QueryTracks(ctx context.Context) ([]models.Track, error) {
	id, err := c.getWeeklyExploration(ctx, c.cfg.User)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("no new playlists found. Check to see if ListenBrainz has created any")
	}
	return c.parseExploration(ctx, id)
}

func (c *ListenBrainz) getWeeklyExploration(ctx context.Context, user string) (string, error) { // Get user LB playlists and find Weekly Exploration's ID
	body, err := c.lbRequest(ctx, fmt.Sprintf("user/%s/playlists/createdfor", user))
	if err != nil {
		return "", fmt.Errorf("getWeeklyExploration(): %s", err.Error())
	}

	var playlists Playlists
	if err := util.ParseResp(body, &playlists); err != nil {
		return "", fmt.Errorf("getWeeklyExploration(): %s", err.Error())
	}

	for _, playlist := range playlists.Playlist {
		_, currentWeek := time.Now().Local().ISOWeek()
		_, creationWeek := playlist.Data.Date.Local().ISOWeek()

		if strings.Contains(playlist.Data.Title, "Weekly Exploration") && currentWeek == creationWeek {
			id := strings.Split(playlist.Data.Identifier, "/")
			return id[len(id)-1], nil
		}
	}
	slog.Debug("no weekly exploration playlist for the current week", debug.RuntimeAttr(user))
	return "", nil
}

func (c *ListenBrainz) parseExploration(ctx context.Context, identifier string) ([]models.Track, error) {
	body, err := c.lbRequest(ctx, fmt.Sprintf("playlist/%s", identifier))
	if err != nil {
		return nil, fmt.Errorf("parseExploration(): %s", err.Error())
	}

	var exploration Exploration
	if err := util.ParseResp(body, &exploration); err != nil {
		return nil, fmt.Errorf("parseExploration(): %s", err.Error())
	}

	if len(exploration.Playlist.Tracks) == 0 {
		return nil, fmt.Errorf("no tracks found in playlist %s", identifier)
	}

	tracks := make([]models.Track, 0, len(exploration.Playlist.Tracks))
	for _, track := range exploration.Playlist.Tracks {
		if track.Creator == "" || track.Title == "" {
			slog.Warn("skipping malformed playlist entry", "playlist", identifier, "title", track.Title)
			continue
		}
		var mbid string
		if len(track.Identifier) > 0 {
			parts := strings.Split(track.Identifier[0], "/")
			mbid = parts[len(parts)-1]
		}
		tracks = append(tracks, models.Track{
			Source:     models.SourceListenBrainz,
			Artist:     track.Creator,
			Title:      track.Title,
			Album:      track.Album,
			ExternalID: mbid,
		})
	}
	return tracks, nil
}

// RecentListens returns the user's latest scrobbles, newest first. Used to
// seed the LLM prompt.
func (c *ListenBrainz) RecentListens(ctx context.Context, count int) ([]Listen, error) {
	body, err := c.lbRequest(ctx, fmt.Sprintf("user/%s/listens?count=%d", c.cfg.User, count))
	if err != nil {
		return nil, fmt.Errorf("could not get recent listens: %s", err.Error())
	}

	var listens Listens
	if err := util.ParseResp(body, &listens); err != nil {
		return nil, fmt.Errorf("could not get recent listens: %s", err.Error())
	}

	out := make([]Listen, 0, len(listens.Payload.Listens))
	for _, l := range listens.Payload.Listens {
		out = append(out, Listen{
			Artist: l.TrackMetadata.ArtistName,
			Title:  l.TrackMetadata.TrackName,
			Album:  l.TrackMetadata.ReleaseName,
		})
	}
	return out, nil
}

// FreshReleases adapts the ListenBrainz fresh-releases feed into
// album-granularity descriptors.
type FreshReleases struct {
	lb *ListenBrainz
}

func NewFreshReleases(lb *ListenBrainz) *FreshReleases {
	return &FreshReleases{lb: lb}
}

func (c *FreshReleases) Source() models.Source {
	return models.SourceFreshRelease
}

func (c *FreshReleases) QueryTracks(ctx context.Context) ([]models.Track, error) {
	days := c.lb.cfg.FreshDays
	body, err := c.lb.lbRequest(ctx, fmt.Sprintf("explore/fresh-releases/%s?past=true&future=false&days=%d", c.lb.cfg.User, days))
	if err != nil {
		return nil, fmt.Errorf("could not get fresh releases: %s", err.Error())
	}

	var fresh FreshReleasePayload
	if err := util.ParseResp(body, &fresh); err != nil {
		return nil, fmt.Errorf("could not get fresh releases: %s", err.Error())
	}

	tracks := make([]models.Track, 0, len(fresh.Payload.Releases))
	for _, release := range fresh.Payload.Releases {
		if release.ArtistCreditName == "" || release.ReleaseName == "" {
			continue
		}
		tracks = append(tracks, models.Track{
			Source:      models.SourceFreshRelease,
			Artist:      release.ArtistCreditName,
			Title:       release.ReleaseName,
			Album:       release.ReleaseName,
			ReleaseDate: release.ReleaseDate,
			ExternalID:  release.ReleaseMbid,
			IsAlbum:     true,
		})
	}
	return tracks, nil
}

func (c *ListenBrainz) lbRequest(ctx context.Context, path string) ([]byte, error) { // Handle ListenBrainz API requests
	reqURL := fmt.Sprintf("%s/1/%s", c.cfg.URL, path)

	var headers map[string]string
	if c.cfg.Token != "" {
		headers = map[string]string{"Authorization": "Token " + c.cfg.Token}
	}

	body, err := c.HttpClient.MakeRequest(ctx, "GET", reqURL, nil, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to make request to ListenBrainz API: %s", err)
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("ListenBrainz API returned empty response for: %s", reqURL)
	}
	return body, nil
}
