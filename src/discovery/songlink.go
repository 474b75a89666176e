package discovery

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"

	"trackdrop/src/models"
	"trackdrop/src/util"
)

const songlinkAPI = "https://api.song.link/v1-alpha.1"

var deezerLinkRe = regexp.MustCompile(`deezer\.com/(track|album)/(\d+)`)

type songlinkResponse struct {
	EntitiesByUniqueID map[string]struct {
		ID         string `json:"id"`
		Type       string `json:"type"` // song or album
		Title      string `json:"title"`
		ArtistName string `json:"artistName"`
	} `json:"entitiesByUniqueId"`
	LinksByPlatform map[string]struct {
		URL            string `json:"url"`
		EntityUniqueID string `json:"entityUniqueId"`
	} `json:"linksByPlatform"`
}

// Links resolves ad-hoc shared URLs (Spotify, Apple Music, Tidal, YouTube,
// Deezer itself...) into download descriptors via the Songlink service.
type Links struct {
	HttpClient *util.HttpClient
	Deezer     *Deezer
	urls       []string
	baseURL    string
}

func NewLinks(urls []string, httpClient *util.HttpClient) *Links {
	return &Links{
		HttpClient: httpClient,
		Deezer:     NewDeezer(httpClient),
		urls:       urls,
		baseURL:    songlinkAPI,
	}
}

func (c *Links) Source() models.Source {
	return models.SourceLink
}

// QueryTracks resolves each shared link independently; a link that fails to
// resolve is logged and dropped, not fatal to the batch.
func (c *Links) QueryTracks(ctx context.Context) ([]models.Track, error) {
	var tracks []models.Track
	for _, shared := range c.urls {
		track, err := c.resolve(ctx, shared)
		if err != nil {
			log.Printf("[link] could not resolve %s: %s", shared, err.Error())
			continue
		}
		tracks = append(tracks, track)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("none of the %d shared links resolved", len(c.urls))
	}
	return tracks, nil
}

func (c *Links) resolve(ctx context.Context, shared string) (models.Track, error) {
	body, err := c.HttpClient.MakeRequest(ctx, "GET", fmt.Sprintf("%s/links?url=%s", c.baseURL, url.QueryEscape(shared)), nil, nil)
	if err != nil {
		return models.Track{}, fmt.Errorf("songlink request failed: %s", err.Error())
	}

	var resp songlinkResponse
	if err := util.ParseResp(body, &resp); err != nil {
		return models.Track{}, fmt.Errorf("songlink request failed: %s", err.Error())
	}

	deezer, ok := resp.LinksByPlatform["deezer"]
	if !ok || deezer.URL == "" {
		return models.Track{}, fmt.Errorf("%w: no deezer target for link", util.ErrTerminal)
	}

	match := deezerLinkRe.FindStringSubmatch(deezer.URL)
	if match == nil {
		return models.Track{}, fmt.Errorf("%w: unrecognised deezer url %s", util.ErrMalformed, deezer.URL)
	}
	isAlbum := match[1] == "album"

	entity, found := resp.EntitiesByUniqueID[deezer.EntityUniqueID]
	if !found {
		// any entity beats none; titles only, cross-checked below
		for _, e := range resp.EntitiesByUniqueID {
			entity = e
			break
		}
	}

	track := models.Track{
		Source:     models.SourceLink,
		Artist:     entity.ArtistName,
		Title:      entity.Title,
		ExternalID: match[2],
		OriginURL:  deezer.URL,
		IsAlbum:    isAlbum,
	}
	if isAlbum {
		track.Album = entity.Title
	}

	if err := c.crossValidate(ctx, &track); err != nil {
		return models.Track{}, err
	}
	if track.Artist == "" || track.Title == "" {
		return models.Track{}, fmt.Errorf("%w: resolved link has no artist or title", util.ErrMalformed)
	}
	return track, nil
}

// crossValidate checks the Songlink-supplied names against the Deezer record
// for the resolved ID. On a mismatch the Songlink names win, since they came
// from the platform the user actually shared; the Deezer record still
// supplies the album and release date.
func (c *Links) crossValidate(ctx context.Context, track *models.Track) error {
	if track.IsAlbum {
		return nil
	}
	id, err := strconv.ParseInt(track.ExternalID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad deezer id %s", util.ErrMalformed, track.ExternalID)
	}

	details, found, err := c.Deezer.TrackDetails(ctx, id)
	if err != nil || !found {
		return err // lookup failure leaves the track as resolved
	}

	if models.Normalize(details.Artist.Name) == models.Normalize(track.Artist) &&
		models.Normalize(details.Title) == models.Normalize(track.Title) {
		track.Artist = details.Artist.Name
		track.Title = details.Title
	} else {
		log.Printf("[link] deezer metadata mismatch for %s, keeping supplied names", track.OriginURL)
	}
	track.Album = details.Album.Title
	track.ReleaseDate = details.Album.ReleaseDate
	return nil
}
