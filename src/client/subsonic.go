package client

import (
	"context"
	"fmt"
	"time"

	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"net/url"

	"trackdrop/src/config"
	"trackdrop/src/debug"
	"trackdrop/src/models"
	"trackdrop/src/util"

	"log/slog"
)

type FailedResp struct {
	SubsonicResponse struct {
		Status string `json:"status"`
		Error  struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"subsonic-response"`
}

type Song struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	Path          string `json:"path"`
	Comment       string `json:"comment,omitempty"`
	UserRating    int    `json:"userRating,omitempty"`
	MusicBrainzID string `json:"musicBrainzId,omitempty"`
}

type SubResponse struct {
	SubsonicResponse struct {
		Status        string `json:"status"`
		Version       string `json:"version"`
		SearchResult3 struct {
			Song []Song `json:"song"`
		} `json:"searchResult3,omitempty"`
		Song      Song `json:"song,omitempty"`
		Playlists struct {
			Playlist []Playlist `json:"playlist,omitempty"`
		} `json:"playlists,omitempty"`
		Playlist Playlist `json:"playlist,omitempty"`
	} `json:"subsonic-response"`
}

type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Comment   string    `json:"comment,omitempty"`
	SongCount int       `json:"songCount"`
	Owner     string    `json:"owner"`
	Created   time.Time `json:"created"`
	Changed   time.Time `json:"changed"`
}

type Subsonic struct {
	Token      string
	Salt       string
	HttpClient *util.HttpClient
	Cfg        config.LibraryConfig
}

func NewSubsonic(cfg config.LibraryConfig, httpClient *util.HttpClient) *Subsonic {
	return &Subsonic{Cfg: cfg,
		HttpClient: httpClient}
}

func (c *Subsonic) GetAuth() error { // Generate salt and token
	var salt = make([]byte, 6)

	_, err := rand.Read(salt)
	if err != nil {
		return fmt.Errorf("failed to read salt: %s", err.Error())
	}

	saltStr := base64.RawURLEncoding.EncodeToString(salt)
	passSalt := fmt.Sprintf("%s%s", c.Cfg.Password, saltStr)

	token := fmt.Sprintf("%x", md5.Sum([]byte(passSalt)))

	c.Token = url.PathEscape(token)
	c.Salt = url.PathEscape(saltStr)
	return nil
}

// ListTagged walks the library and returns every track whose comment is one
// of the recommendation markers. Comments and ratings only come back from
// getSong, so each candidate costs one extra call, same as the library walk
// the original cleanup did.
func (c *Subsonic) ListTagged(ctx context.Context) ([]models.LibraryTrack, error) {
	var tagged []models.LibraryTrack

	offset := 0
	for {
		reqParam := fmt.Sprintf("search3?query=%s&songCount=%d&songOffset=%d&artistCount=0&albumCount=0&f=json",
			url.QueryEscape(`""`), c.Cfg.PageSize, offset)

		body, err := c.subsonicRequest(ctx, reqParam)
		if err != nil {
			return nil, err
		}
		var resp SubResponse
		if err := util.ParseResp(body, &resp); err != nil {
			return nil, err
		}

		songs := resp.SubsonicResponse.SearchResult3.Song
		if len(songs) == 0 {
			break
		}

		for _, song := range songs {
			details, err := c.getSong(ctx, song.ID)
			if err != nil {
				slog.Debug("song details lookup failed", debug.RuntimeAttr(err.Error()))
				continue
			}
			if _, ok := models.SourceForMarker(details.Comment); !ok {
				continue
			}
			tagged = append(tagged, models.LibraryTrack{
				ID:      details.ID,
				Path:    details.Path,
				Artist:  details.Artist,
				Title:   details.Title,
				Album:   details.Album,
				Rating:  details.UserRating,
				Comment: details.Comment,
				MBID:    details.MusicBrainzID,
			})
		}

		if len(songs) < c.Cfg.PageSize {
			break
		}
		offset += len(songs)
	}
	return tagged, nil
}

func (c *Subsonic) getSong(ctx context.Context, id string) (Song, error) {
	reqParam := fmt.Sprintf("getSong?id=%s&f=json", url.QueryEscape(id))

	body, err := c.subsonicRequest(ctx, reqParam)
	if err != nil {
		return Song{}, err
	}
	var resp SubResponse
	if err := util.ParseResp(body, &resp); err != nil {
		return Song{}, err
	}
	return resp.SubsonicResponse.Song, nil
}

// Search reports whether the library already holds an equivalent track,
// album-aware.
func (c *Subsonic) Search(ctx context.Context, artist, title, album string) (bool, error) {
	songs, err := c.search3(ctx, fmt.Sprintf("%s %s", title, artist))
	if err != nil {
		return false, err
	}

	want := models.Track{Artist: artist, Title: title, Album: album}
	for _, song := range songs {
		got := models.Track{Artist: song.Artist, Title: song.Title, Album: song.Album}
		if got.Matches(want) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Subsonic) SearchID(ctx context.Context, artist, title string) (string, error) {
	songs, err := c.search3(ctx, fmt.Sprintf("%s %s", title, artist))
	if err != nil {
		return "", err
	}

	want := models.Track{Artist: artist, Title: title}
	for _, song := range songs {
		got := models.Track{Artist: song.Artist, Title: song.Title}
		if got.Matches(want) {
			return song.ID, nil
		}
	}
	if len(songs) > 0 {
		slog.Debug("search results", debug.RuntimeAttr(fmt.Sprintf("[subsonic] results for %s - %s matched no criteria", artist, title)))
	}
	return "", nil
}

func (c *Subsonic) search3(ctx context.Context, query string) ([]Song, error) {
	reqParam := fmt.Sprintf("search3?query=%s&artistCount=0&albumCount=0&f=json", url.QueryEscape(query))

	body, err := c.subsonicRequest(ctx, reqParam)
	if err != nil {
		return nil, err
	}
	var resp SubResponse
	if err := util.ParseResp(body, &resp); err != nil {
		return nil, err
	}
	return resp.SubsonicResponse.SearchResult3.Song, nil
}

func (c *Subsonic) RefreshLibrary(ctx context.Context) error {
	reqParam := "startScan?f=json"

	if _, err := c.subsonicRequest(ctx, reqParam); err != nil {
		return err
	}
	return nil
}

// CreatePlaylist builds the named playlist from the given songs. With a
// non-empty playlistID the existing playlist is overwritten instead.
func (c *Subsonic) CreatePlaylist(ctx context.Context, name, playlistID string, songIDs []string) (string, error) {
	params := url.Values{}
	if playlistID != "" {
		params.Set("playlistId", playlistID)
	} else {
		params.Set("name", name)
	}
	for _, id := range songIDs {
		params.Add("songId", id)
	}
	reqParam := fmt.Sprintf("createPlaylist?%s&f=json", params.Encode())

	body, err := c.subsonicRequest(ctx, reqParam)
	if err != nil {
		return "", err
	}

	var resp SubResponse
	if err := util.ParseResp(body, &resp); err != nil {
		return "", err
	}
	if resp.SubsonicResponse.Playlist.ID != "" {
		return resp.SubsonicResponse.Playlist.ID, nil
	}
	return playlistID, nil
}

func (c *Subsonic) SearchPlaylist(ctx context.Context, name string) (string, error) {
	reqParam := "getPlaylists?f=json"

	body, err := c.subsonicRequest(ctx, reqParam)
	if err != nil {
		return "", err
	}

	var resp SubResponse
	if err := util.ParseResp(body, &resp); err != nil {
		return "", err
	}

	for _, playlist := range resp.SubsonicResponse.Playlists.Playlist {
		if playlist.Name == name {
			return playlist.ID, nil
		}
	}
	return "", nil
}

func (c *Subsonic) UpdatePlaylist(ctx context.Context, id, comment string) error {
	reqParam := fmt.Sprintf("updatePlaylist?playlistId=%s&comment=%s&f=json", id, url.QueryEscape(comment))

	if _, err := c.subsonicRequest(ctx, reqParam); err != nil {
		return err
	}
	return nil
}

func (c *Subsonic) subsonicRequest(ctx context.Context, reqParams string) ([]byte, error) {

	reqURL := fmt.Sprintf("%s/rest/%s&u=%s&t=%s&s=%s&v=%s&c=%s", c.Cfg.URL, reqParams, c.Cfg.User, c.Token, c.Salt, c.Cfg.Version, c.Cfg.ClientID)
	body, err := c.HttpClient.MakeRequest(ctx, "GET", reqURL, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to make request %s", err.Error())
	}

	var checkResp FailedResp
	if err = util.ParseResp(body, &checkResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request %s", err.Error())
	} else if checkResp.SubsonicResponse.Status == "failed" {
		return nil, fmt.Errorf("%s", checkResp.SubsonicResponse.Error.Message)
	}
	return body, nil
}
