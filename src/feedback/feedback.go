// Package feedback sends like/dislike signals back to the service that
// recommended a track. Failures are per-item: they are logged, counted and
// never abort the cleanup batch.
package feedback

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

type Polarity int

const (
	Positive Polarity = 1
	Negative Polarity = -1
)

func (p Polarity) String() string {
	if p == Positive {
		return "positive"
	}
	return "negative"
}

type Dispatcher struct {
	HttpClient *util.HttpClient
	LB         cfg.Listenbrainz
	LF         cfg.Lastfm
}

func NewDispatcher(sources cfg.SourcesConfig, httpClient *util.HttpClient) *Dispatcher {
	return &Dispatcher{
		HttpClient: httpClient,
		LB:         sources.Listenbrainz,
		LF:         sources.Lastfm,
	}
}

// Supported reports whether a source has a feedback channel at all. LLM,
// fresh-release and link recommendations have nowhere to send signals.
func (d *Dispatcher) Supported(source models.Source) bool {
	switch source {
	case models.SourceListenBrainz:
		return d.LB.Enabled && d.LB.Token != ""
	case models.SourceLastFM:
		return d.LF.Enabled && d.LF.SessionKey != "" && d.LF.APISecret != ""
	default:
		return false
	}
}

// Submit sends one signal for one track. Transient network failures are
// retried with backoff inside the HTTP client; auth and permission errors
// come back terminal and are not retried.
func (d *Dispatcher) Submit(ctx context.Context, source models.Source, track models.LibraryTrack, polarity Polarity) error {
	switch source {
	case models.SourceListenBrainz:
		return d.submitListenBrainz(ctx, track, polarity)
	case models.SourceLastFM:
		return d.submitLastFM(ctx, track, polarity)
	default:
		return fmt.Errorf("%w: source %s has no feedback channel", util.ErrTerminal, source)
	}
}

func (d *Dispatcher) submitListenBrainz(ctx context.Context, track models.LibraryTrack, polarity Polarity) error {
	if track.MBID == "" {
		return fmt.Errorf("%w: no recording MBID for %s - %s", util.ErrTerminal, track.Artist, track.Title)
	}

	payload, err := json.Marshal(map[string]any{
		"recording_mbid": track.MBID,
		"score":          int(polarity),
	})
	if err != nil {
		return fmt.Errorf("failed to encode feedback payload: %s", err.Error())
	}

	reqURL := fmt.Sprintf("%s/1/feedback/recording-feedback", d.LB.URL)
	headers := map[string]string{"Authorization": "Token " + d.LB.Token}
	if _, err := d.HttpClient.MakeRequest(ctx, "POST", reqURL, payload, headers); err != nil {
		return fmt.Errorf("listenbrainz feedback failed: %w", err)
	}
	return nil
}

func (d *Dispatcher) submitLastFM(ctx context.Context, track models.LibraryTrack, polarity Polarity) error {
	method := "track.love"
	if polarity == Negative {
		method = "track.unlove"
	}

	params := map[string]string{
		"method":  method,
		"artist":  track.Artist,
		"track":   track.Title,
		"api_key": d.LF.APIKey,
		"sk":      d.LF.SessionKey,
	}
	params["api_sig"] = sign(params, d.LF.APISecret)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("format", "json")

	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	if _, err := d.HttpClient.MakeRequest(ctx, "POST", d.LF.URL, []byte(form.Encode()), headers); err != nil {
		return fmt.Errorf("last.fm %s failed: %w", method, err)
	}
	return nil
}

// sign builds the Last.fm method signature: params sorted by key,
// concatenated, secret appended, md5-hexed.
func sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params[k])
	}
	sb.WriteString(secret)
	return fmt.Sprintf("%x", md5.Sum([]byte(sb.String())))
}
