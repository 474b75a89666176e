package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

func testHTTP() *util.HttpClient {
	return util.NewHttp(util.HttpClientConfig{Timeout: 5, Retries: 0})
}

func TestListenBrainzQueryTracks(t *testing.T) {
	now := time.Now().Format(time.RFC3339)
	mux := http.NewServeMux()
	mux.HandleFunc("/1/user/alice/playlists/createdfor", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"playlists":[
			{"playlist":{"date":"2020-01-01T00:00:00Z","identifier":"https://listenbrainz.org/playlist/old","title":"Weekly Exploration for alice, week of 2019-12-30"}},
			{"playlist":{"date":%q,"identifier":"https://listenbrainz.org/playlist/abc123","title":"Weekly Exploration for alice"}}
		]}`, now)
	})
	mux.HandleFunc("/1/playlist/abc123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"playlist":{"title":"Weekly Exploration","track":[
			{"creator":"Boards of Canada","title":"Roygbiv","album":"Music Has the Right to Children","identifier":["https://musicbrainz.org/recording/aaaa-bbbb"]},
			{"creator":"","title":"broken entry"},
			{"creator":"Plaid","title":"Eyen","album":"Double Figure","identifier":[]}
		]}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	lb := NewListenBrainz(cfg.Listenbrainz{User: "alice", URL: server.URL, Token: "tok"}, testHTTP())
	tracks, err := lb.QueryTracks(context.Background())
	if err != nil {
		t.Fatalf("query: %s", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks (malformed skipped), got %d", len(tracks))
	}
	if tracks[0].ExternalID != "aaaa-bbbb" {
		t.Errorf("mbid not extracted: %q", tracks[0].ExternalID)
	}
	if tracks[0].Source != models.SourceListenBrainz {
		t.Errorf("wrong source: %s", tracks[0].Source)
	}
}

func TestListenBrainzNoCurrentPlaylist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/1/user/alice/playlists/createdfor", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"playlists":[{"playlist":{"date":"2020-01-01T00:00:00Z","identifier":"https://listenbrainz.org/playlist/stale","title":"Weekly Exploration for alice"}}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	lb := NewListenBrainz(cfg.Listenbrainz{User: "alice", URL: server.URL}, testHTTP())
	if _, err := lb.QueryTracks(context.Background()); err == nil {
		t.Fatal("expected error for stale playlist week")
	}
}

func TestFreshReleases(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/1/explore/fresh-releases/alice", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("days") != "7" {
			t.Errorf("days param not forwarded: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"payload":{"user_name":"alice","releases":[
			{"artist_credit_name":"Jungle","release_name":"Volcano","release_date":"2026-08-25","release_mbid":"rel-1"},
			{"artist_credit_name":"","release_name":"nameless"}
		]}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	lb := NewListenBrainz(cfg.Listenbrainz{User: "alice", URL: server.URL, FreshDays: 7}, testHTTP())
	tracks, err := NewFreshReleases(lb).QueryTracks(context.Background())
	if err != nil {
		t.Fatalf("query: %s", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected 1 release, got %d", len(tracks))
	}
	if !tracks[0].IsAlbum || tracks[0].Album != "Volcano" || tracks[0].Source != models.SourceFreshRelease {
		t.Errorf("unexpected descriptor %+v", tracks[0])
	}
}

func TestLastFMQueryTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/player/station/user/bob/recommended", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" {
			t.Error("station endpoint requires a Referer header")
		}
		fmt.Fprint(w, `{"playlist":[
			{"name":"Kids","artists":[{"name":"MGMT"}]},
			{"name":"","artists":[{"name":"Nobody"}]}
		]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	lf := NewLastFM(cfg.Lastfm{User: "bob"}, testHTTP())
	lf.baseURL = server.URL
	tracks, err := lf.QueryTracks(context.Background())
	if err != nil {
		t.Fatalf("query: %s", err)
	}
	if len(tracks) != 1 || tracks[0].Artist != "MGMT" || tracks[0].Album != "" {
		t.Fatalf("unexpected tracks %+v", tracks)
	}
}

func TestLLMQueryTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %s", err)
		}
		if len(req.Messages) != 1 || req.Model != "test/model" {
			t.Errorf("unexpected request %+v", req)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Here you go:\n[\n {\"artist\":\"Caribou\",\"title\":\"Odessa\",\"album\":\"Swim\"},\n {\"artist\":\"\",\"title\":\"broken\"},\n {\"artist\":\"Four Tet\",\"title\":\"Two Thousand and Seventeen\",\"album\":\"New Energy\"}\n]\nEnjoy!"}}]}`)
	}))
	defer server.Close()

	listens := func(context.Context, int) ([]Listen, error) {
		return []Listen{{Artist: "Caribou", Title: "Sun"}}, nil
	}
	llm := NewLLM(cfg.LLM{URL: server.URL, APIKey: "key", Model: "test/model", Count: 25, History: 50}, testHTTP(), listens)

	tracks, err := llm.QueryTracks(context.Background())
	if err != nil {
		t.Fatalf("query: %s", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks (malformed skipped), got %d", len(tracks))
	}
	if tracks[1].Album != "New Energy" || tracks[1].Source != models.SourceLLM {
		t.Errorf("unexpected track %+v", tracks[1])
	}
}

func TestLLMRejectsProseOnlyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"I cannot recommend songs right now."}}]}`)
	}))
	defer server.Close()

	listens := func(context.Context, int) ([]Listen, error) {
		return []Listen{{Artist: "a", Title: "b"}}, nil
	}
	llm := NewLLM(cfg.LLM{URL: server.URL, APIKey: "key", Count: 5}, testHTTP(), listens)
	if _, err := llm.QueryTracks(context.Background()); err == nil {
		t.Fatal("expected malformed-reply error")
	}
}

func TestLinksResolveAndCrossValidate(t *testing.T) {
	deezerMux := http.NewServeMux()
	deezerMux.HandleFunc("/track/3135556", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":3135556,"title":"Harder, Better, Faster, Stronger","link":"https://www.deezer.com/track/3135556",
			"artist":{"name":"Daft Punk"},"album":{"title":"Discovery","release_date":"2001-03-07"}}`)
	})
	deezerSrv := httptest.NewServer(deezerMux)
	defer deezerSrv.Close()

	songlinkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "" {
			t.Error("missing url param")
		}
		fmt.Fprint(w, `{
			"entitiesByUniqueId":{"DEEZER_SONG::3135556":{"id":"3135556","type":"song","title":"Harder, Better, Faster, Stronger","artistName":"Daft Punk"}},
			"linksByPlatform":{"deezer":{"url":"https://www.deezer.com/track/3135556","entityUniqueId":"DEEZER_SONG::3135556"}}
		}`)
	}))
	defer songlinkSrv.Close()

	links := NewLinks([]string{"https://open.spotify.com/track/abc"}, testHTTP())
	links.baseURL = songlinkSrv.URL
	links.Deezer.BaseURL = deezerSrv.URL

	tracks, err := links.QueryTracks(context.Background())
	if err != nil {
		t.Fatalf("query: %s", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	got := tracks[0]
	if got.Album != "Discovery" || got.ReleaseDate != "2001-03-07" || got.ExternalID != "3135556" {
		t.Errorf("cross-validation did not enrich: %+v", got)
	}
	if got.Source != models.SourceLink || got.IsAlbum {
		t.Errorf("unexpected descriptor %+v", got)
	}
}

func TestLinksNoDeezerTarget(t *testing.T) {
	songlinkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entitiesByUniqueId":{},"linksByPlatform":{}}`)
	}))
	defer songlinkSrv.Close()

	links := NewLinks([]string{"https://example.com/whatever"}, testHTTP())
	links.baseURL = songlinkSrv.URL

	if _, err := links.QueryTracks(context.Background()); err == nil {
		t.Fatal("expected failure when no link resolves")
	}
}

type stubClient struct {
	source models.Source
	tracks []models.Track
	err    error
}

func (s stubClient) Source() models.Source { return s.source }

func (s stubClient) QueryTracks(context.Context) ([]models.Track, error) {
	return s.tracks, s.err
}

func TestDiscoverIsolatesSourceFailures(t *testing.T) {
	d := &Discoverer{clients: []SourceClient{
		stubClient{source: models.SourceListenBrainz, tracks: []models.Track{{Artist: "A", Title: "B"}}},
		stubClient{source: models.SourceLastFM, err: fmt.Errorf("station down")},
	}}

	tracks, errs := d.Discover(context.Background(), "")
	if len(tracks[models.SourceListenBrainz]) != 1 {
		t.Fatalf("healthy source lost: %+v", tracks)
	}
	if errs[models.SourceLastFM] == nil {
		t.Fatal("failing source not reported")
	}
}

func TestDiscoverOnlyFilter(t *testing.T) {
	d := &Discoverer{clients: []SourceClient{
		stubClient{source: models.SourceListenBrainz, tracks: []models.Track{{Artist: "A", Title: "B"}}},
		stubClient{source: models.SourceLastFM, tracks: []models.Track{{Artist: "C", Title: "D"}}},
	}}

	tracks, errs := d.Discover(context.Background(), models.SourceLastFM)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors %+v", errs)
	}
	if _, ok := tracks[models.SourceListenBrainz]; ok {
		t.Fatal("filter did not exclude listenbrainz")
	}
	if len(tracks[models.SourceLastFM]) != 1 {
		t.Fatal("filtered source missing")
	}
}
