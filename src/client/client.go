package client

import (
	"context"
	"fmt"
	"log"
	"time"

	"trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

// Client manages interactions with the music library service.
type Client struct {
	Cfg *config.LibraryConfig
	API APIClient
}

type APIClient interface {
	GetAuth() error
	ListTagged(ctx context.Context) ([]models.LibraryTrack, error)
	Search(ctx context.Context, artist, title, album string) (bool, error)
	SearchID(ctx context.Context, artist, title string) (string, error)
	RefreshLibrary(ctx context.Context) error
	CreatePlaylist(ctx context.Context, name, playlistID string, songIDs []string) (string, error)
	SearchPlaylist(ctx context.Context, name string) (string, error)
	UpdatePlaylist(ctx context.Context, id, comment string) error
}

// NewClient initializes the library client and sets up authentication.
func NewClient(cfg *config.Config, httpClient *util.HttpClient) *Client {
	c := &Client{
		Cfg: &cfg.LibraryCfg,
		API: NewSubsonic(cfg.LibraryCfg, httpClient),
	}

	if c.Cfg.User == "" || c.Cfg.Password == "" {
		log.Fatal("library USER and PASSWORD are required")
	}
	if err := c.API.GetAuth(); err != nil {
		log.Fatal(err)
	}
	return c
}

// Contains checks whether an equivalent track is already in the library,
// album-aware.
func (c *Client) Contains(ctx context.Context, track models.Track) (bool, error) {
	return c.API.Search(ctx, track.Artist, track.Title, track.Album)
}

// RefreshAndPlaylist schedules a library scan, waits for it to settle, then
// builds or refreshes one playlist per entry in playlists.
func (c *Client) RefreshAndPlaylist(ctx context.Context, playlists map[string][]models.Track) error {
	if err := c.API.RefreshLibrary(ctx); err != nil {
		return fmt.Errorf("[library] failed to schedule a library scan: %s", err.Error())
	}

	log.Printf("[library] Refreshing library...")
	select {
	case <-time.After(time.Duration(c.Cfg.ScanWait) * time.Minute):
	case <-ctx.Done():
		return ctx.Err()
	}

	for name, tracks := range playlists {
		if err := c.makePlaylist(ctx, name, tracks); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) makePlaylist(ctx context.Context, name string, tracks []models.Track) error {
	var ids []string
	for _, track := range tracks {
		id, err := c.API.SearchID(ctx, track.Artist, track.Title)
		if err != nil || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	existing, err := c.API.SearchPlaylist(ctx, name)
	if err != nil {
		return fmt.Errorf("[library] failed to look up playlist %s: %s", name, err.Error())
	}
	id, err := c.API.CreatePlaylist(ctx, name, existing, ids)
	if err != nil {
		return fmt.Errorf("[library] failed to create playlist %s: %s", name, err.Error())
	}

	description := "Created by TrackDrop from this week's recommendations"
	if err := c.API.UpdatePlaylist(ctx, id, description); err != nil {
		return fmt.Errorf("[library] failed to update playlist %s: %s", name, err.Error())
	}
	return nil
}
