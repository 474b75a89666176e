package models

// for structs used across the project

import "fmt"

// Source identifies where a recommendation came from. The set is closed:
// feedback routing, dedup priority and playlist markers all switch on it.
type Source string

const (
	SourceListenBrainz Source = "listenbrainz"
	SourceLastFM       Source = "lastfm"
	SourceLLM          Source = "llm"
	SourceFreshRelease Source = "fresh_release"
	SourceLink         Source = "link"
	SourceAlbum        Source = "album"
)

// Priority is the fixed acceptance order across sources. When two sources
// recommend the same track in one run, the job is attributed to the source
// that appears first here.
var Priority = []Source{
	SourceListenBrainz,
	SourceLastFM,
	SourceLLM,
	SourceFreshRelease,
	SourceLink,
	SourceAlbum,
}

// Marker returns the comment tag written into downloaded files, identifying
// the source that recommended them. A track is owned by the engine only while
// its comment is one of these.
func (s Source) Marker() string {
	switch s {
	case SourceListenBrainz:
		return "trackdrop:listenbrainz"
	case SourceLastFM:
		return "trackdrop:lastfm"
	case SourceLLM:
		return "trackdrop:llm"
	case SourceFreshRelease:
		return "trackdrop:fresh-release"
	case SourceLink:
		return "trackdrop:link"
	case SourceAlbum:
		return "trackdrop:album"
	}
	return ""
}

// Display returns the human-facing source name used in playlist titles.
func (s Source) Display() string {
	switch s {
	case SourceListenBrainz:
		return "Weekly Exploration"
	case SourceLastFM:
		return "Last.fm Station"
	case SourceLLM:
		return "LLM Picks"
	case SourceFreshRelease:
		return "Fresh Releases"
	case SourceLink:
		return "Shared Links"
	case SourceAlbum:
		return "Albums"
	}
	return string(s)
}

// SourceForMarker maps a library comment back to its source. ok is false for
// comments the engine does not own (including human-cleared ones).
func SourceForMarker(comment string) (Source, bool) {
	for _, s := range Priority {
		if comment == s.Marker() {
			return s, true
		}
	}
	return "", false
}

// Track is the canonical descriptor every source payload normalizes into.
type Track struct {
	Source      Source
	Artist      string
	Title       string
	Album       string // optional; empty means unknown
	ReleaseDate string // optional, as reported by the source
	ExternalID  string // MBID, Deezer ID... whatever the source keys feedback on
	OriginURL   string // set for link and enriched tracks
	IsAlbum     bool   // whole-release download (fresh_release / album links)
}

func (t Track) String() string {
	if t.IsAlbum {
		return fmt.Sprintf("%s - %s", t.Artist, t.Album)
	}
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// LibraryTrack is a track as the library service reports it.
type LibraryTrack struct {
	ID      string
	Path    string
	Artist  string
	Title   string
	Album   string
	Rating  int // 0-5, 0 means unrated
	Comment string
	MBID    string
}

// Metadata is the record handed to the tagging collaborator after a download
// lands in the library.
type Metadata struct {
	Artist      string
	Title       string
	Album       string
	ReleaseDate string
	MBID        string
	Comment     string // recommendation marker
}
