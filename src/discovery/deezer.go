package discovery

import (
	"context"
	"fmt"
	"net/url"

	"trackdrop/src/models"
	"trackdrop/src/util"
)

const deezerAPI = "https://api.deezer.com"

type DeezerSearch struct {
	Data []struct {
		ID     int64  `json:"id"`
		Title  string `json:"title"`
		Link   string `json:"link"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
		Album struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
		} `json:"album"`
	} `json:"data"`
}

type DeezerTrack struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title       string `json:"title"`
		ReleaseDate string `json:"release_date"`
	} `json:"album"`
}

type Deezer struct {
	HttpClient *util.HttpClient
	BaseURL    string
}

func NewDeezer(httpClient *util.HttpClient) *Deezer {
	return &Deezer{HttpClient: httpClient, BaseURL: deezerAPI}
}

// SearchTrack looks the (artist, title) pair up on Deezer. found is false
// when the catalog has no match; that is not an error.
func (c *Deezer) SearchTrack(ctx context.Context, artist, title string) (DeezerTrack, bool, error) {
	query := url.QueryEscape(fmt.Sprintf("artist:%q track:%q", artist, title))
	body, err := c.HttpClient.MakeRequest(ctx, "GET", fmt.Sprintf("%s/search?q=%s", c.BaseURL, query), nil, nil)
	if err != nil {
		return DeezerTrack{}, false, fmt.Errorf("deezer search failed: %s", err.Error())
	}

	var results DeezerSearch
	if err := util.ParseResp(body, &results); err != nil {
		return DeezerTrack{}, false, fmt.Errorf("deezer search failed: %s", err.Error())
	}
	if len(results.Data) == 0 {
		return DeezerTrack{}, false, nil
	}
	return c.TrackDetails(ctx, results.Data[0].ID)
}

// TrackDetails fetches the full record for a track ID, which carries the
// album release date the search results omit.
func (c *Deezer) TrackDetails(ctx context.Context, id int64) (DeezerTrack, bool, error) {
	body, err := c.HttpClient.MakeRequest(ctx, "GET", fmt.Sprintf("%s/track/%d", c.BaseURL, id), nil, nil)
	if err != nil {
		return DeezerTrack{}, false, fmt.Errorf("deezer track lookup failed: %s", err.Error())
	}

	var track DeezerTrack
	if err := util.ParseResp(body, &track); err != nil {
		return DeezerTrack{}, false, fmt.Errorf("deezer track lookup failed: %s", err.Error())
	}
	if track.ID == 0 {
		return DeezerTrack{}, false, nil
	}
	return track, true, nil
}

// Enrich backfills album, release date and the canonical track link from the
// Deezer catalog. Lookup failures leave the track as supplied.
func (c *Deezer) Enrich(ctx context.Context, track *models.Track) error {
	if track.IsAlbum {
		return nil
	}
	details, found, err := c.SearchTrack(ctx, track.Artist, track.Title)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if track.Album == "" {
		track.Album = details.Album.Title
	}
	if track.ReleaseDate == "" {
		track.ReleaseDate = details.Album.ReleaseDate
	}
	track.OriginURL = details.Link
	return nil
}
