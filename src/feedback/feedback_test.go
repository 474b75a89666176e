package feedback

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

func testHTTP() *util.HttpClient {
	return util.NewHttp(util.HttpClientConfig{Timeout: 5})
}

func TestSupported(t *testing.T) {
	d := NewDispatcher(cfg.SourcesConfig{
		Listenbrainz: cfg.Listenbrainz{Enabled: true, Token: "tok"},
		Lastfm:       cfg.Lastfm{Enabled: true}, // no session key
	}, nil)

	if !d.Supported(models.SourceListenBrainz) {
		t.Error("listenbrainz with token must be supported")
	}
	if d.Supported(models.SourceLastFM) {
		t.Error("lastfm without session key must not be supported")
	}
	for _, s := range []models.Source{models.SourceLLM, models.SourceFreshRelease, models.SourceLink, models.SourceAlbum} {
		if d.Supported(s) {
			t.Errorf("%s has no feedback channel", s)
		}
	}
}

func TestSubmitListenBrainz(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/feedback/recording-feedback" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Token tok" {
			t.Errorf("missing token header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer server.Close()

	d := NewDispatcher(cfg.SourcesConfig{
		Listenbrainz: cfg.Listenbrainz{Enabled: true, Token: "tok", URL: server.URL},
	}, testHTTP())

	track := models.LibraryTrack{Artist: "Plaid", Title: "Eyen", MBID: "mb-1"}
	if err := d.Submit(context.Background(), models.SourceListenBrainz, track, Negative); err != nil {
		t.Fatalf("submit: %s", err)
	}
	if got["recording_mbid"] != "mb-1" || got["score"] != float64(-1) {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestSubmitListenBrainzNeedsMBID(t *testing.T) {
	d := NewDispatcher(cfg.SourcesConfig{
		Listenbrainz: cfg.Listenbrainz{Enabled: true, Token: "tok"},
	}, testHTTP())

	err := d.Submit(context.Background(), models.SourceListenBrainz, models.LibraryTrack{Artist: "A", Title: "B"}, Positive)
	if err == nil || util.Retryable(err) {
		t.Fatalf("missing MBID must be terminal, got %v", err)
	}
}

func TestSubmitLastFMSignsRequest(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		form = r.PostForm
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer server.Close()

	d := NewDispatcher(cfg.SourcesConfig{
		Lastfm: cfg.Lastfm{Enabled: true, APIKey: "key", APISecret: "secret", SessionKey: "sk1", URL: server.URL},
	}, testHTTP())

	track := models.LibraryTrack{Artist: "MGMT", Title: "Kids"}
	if err := d.Submit(context.Background(), models.SourceLastFM, track, Positive); err != nil {
		t.Fatalf("submit: %s", err)
	}

	if form.Get("method") != "track.love" {
		t.Errorf("positive feedback should love, got %s", form.Get("method"))
	}
	// format=json stays out of the signature
	expected := fmt.Sprintf("%x", md5.Sum([]byte(
		"api_key"+"key"+"artist"+"MGMT"+"method"+"track.love"+"sk"+"sk1"+"track"+"Kids"+"secret")))
	if form.Get("api_sig") != expected {
		t.Errorf("bad signature: got %s want %s", form.Get("api_sig"), expected)
	}
}

func TestSubmitLastFMNegativeUnloves(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		method = r.PostForm.Get("method")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer server.Close()

	d := NewDispatcher(cfg.SourcesConfig{
		Lastfm: cfg.Lastfm{Enabled: true, APIKey: "key", APISecret: "secret", SessionKey: "sk1", URL: server.URL},
	}, testHTTP())

	if err := d.Submit(context.Background(), models.SourceLastFM, models.LibraryTrack{Artist: "A", Title: "B"}, Negative); err != nil {
		t.Fatalf("submit: %s", err)
	}
	if method != "track.unlove" {
		t.Errorf("negative feedback should unlove, got %s", method)
	}
}
