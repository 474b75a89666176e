package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

// Listen is one scrobble, the shape the prompt serializes.
type Listen struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Album  string `json:"album,omitempty"`
}

const promptTemplate = `You are a music expert assistant. Based on the following list of recently listened tracks in JSON format, please recommend %d new songs that this listener might like.
The recommendations should be for a user who enjoys the artists and genres represented in the listening history. Only recommend tracks that are not already in the listening history.

My listening history:
%s

Please provide your response as a single JSON array of objects, where each object represents a recommended track and has the keys "artist", "title", and "album". Do not include any other text or explanations in your response, only the JSON array.`

// jsonArrayRe grabs the first JSON array in the reply. Models wrap the
// payload in prose or code fences often enough that strict parsing loses.
var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type recommendation struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Album  string `json:"album"`
}

// ListensFunc supplies the scrobbles fed to the prompt.
type ListensFunc func(ctx context.Context, count int) ([]Listen, error)

type LLM struct {
	HttpClient *util.HttpClient
	cfg        cfg.LLM
	listens    ListensFunc
}

func NewLLM(cfg cfg.LLM, httpClient *util.HttpClient, listens ListensFunc) *LLM {
	return &LLM{
		cfg:        cfg,
		HttpClient: httpClient,
		listens:    listens,
	}
}

func (c *LLM) Source() models.Source {
	return models.SourceLLM
}

func (c *LLM) QueryTracks(ctx context.Context) ([]models.Track, error) {
	scrobbles, err := c.listens(ctx, c.cfg.History)
	if err != nil {
		return nil, fmt.Errorf("failed to get listening history: %s", err.Error())
	}
	if len(scrobbles) == 0 {
		return nil, fmt.Errorf("no recent listens to build recommendations from")
	}

	reply, err := c.complete(ctx, scrobbles)
	if err != nil {
		return nil, err
	}
	return c.parseReply(reply)
}

func (c *LLM) complete(ctx context.Context, scrobbles []Listen) (string, error) {
	history, err := json.Marshal(scrobbles)
	if err != nil {
		return "", fmt.Errorf("failed to serialize listening history: %s", err.Error())
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(promptTemplate, c.cfg.Count, history)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %s", err.Error())
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"Content-Type":  "application/json",
	}

	body, err := c.HttpClient.MakeRequest(ctx, "POST", c.cfg.URL, payload, headers)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %s", err.Error())
	}

	var resp chatResponse
	if err := util.ParseResp(body, &resp); err != nil {
		return "", fmt.Errorf("completion request failed: %s", err.Error())
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response had no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// parseReply extracts the first JSON array from the reply and drops entries
// missing an artist or title. An unparsable reply fails the whole source.
func (c *LLM) parseReply(reply string) ([]models.Track, error) {
	raw := jsonArrayRe.FindString(reply)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON array in completion reply", util.ErrMalformed)
	}

	var recs []recommendation
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, fmt.Errorf("%w: %s", util.ErrMalformed, err.Error())
	}

	tracks := make([]models.Track, 0, len(recs))
	for _, rec := range recs {
		if rec.Artist == "" || rec.Title == "" {
			slog.Warn("skipping malformed recommendation", "artist", rec.Artist, "title", rec.Title)
			continue
		}
		tracks = append(tracks, models.Track{
			Source: models.SourceLLM,
			Artist: rec.Artist,
			Title:  rec.Title,
			Album:  rec.Album,
		})
		if len(tracks) >= c.cfg.Count {
			break
		}
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no usable recommendations in completion reply")
	}
	return tracks, nil
}
