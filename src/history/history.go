// Package history persists what has already been processed per user and per
// source: the last playlist fingerprint and the set of downloaded tracks.
// A source whose fingerprint is unchanged is skipped outright, and a track
// already in the downloaded set is never re-queued.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
)

type Store struct {
	dir       string
	retention time.Duration

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

type Downloaded struct {
	Artist string    `json:"artist"`
	Title  string    `json:"title"`
	Album  string    `json:"album,omitempty"`
	At     time.Time `json:"downloaded_at"`
}

type Entry struct {
	Fingerprint string       `json:"fingerprint"`
	Downloaded  []Downloaded `json:"downloaded"`
}

type userHistory struct {
	User    string                   `json:"user"`
	Sources map[models.Source]*Entry `json:"sources"`
}

func NewStore(c cfg.HistoryConfig) *Store {
	return &Store{
		dir:       c.StateDir,
		retention: time.Duration(c.RetentionDays) * 24 * time.Hour,
		users:     make(map[string]*sync.Mutex),
	}
}

// Fingerprint hashes an ordered track list. Any change in content or order
// yields a different value.
func Fingerprint(tracks []models.Track) string {
	h := sha256.New()
	for _, t := range tracks {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1e", models.Normalize(t.Artist), models.Normalize(t.Title), models.Normalize(t.Album))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Changed reports whether a source's remote playlist differs from the last
// processed one. With bypass set an unchanged fingerprint still counts as
// changed, forcing reprocessing.
func (s *Store) Changed(user string, source models.Source, fingerprint string, bypass bool) (bool, error) {
	if bypass {
		return true, nil
	}
	last, err := s.GetFingerprint(user, source)
	if err != nil {
		return false, err
	}
	return last != fingerprint, nil
}

func (s *Store) GetFingerprint(user string, source models.Source) (string, error) {
	unlock := s.lockUser(user)
	defer unlock()

	h, err := s.load(user)
	if err != nil {
		return "", err
	}
	if entry, ok := h.Sources[source]; ok {
		return entry.Fingerprint, nil
	}
	return "", nil
}

// HasDownloaded checks the downloaded set of (user, source), album-aware.
func (s *Store) HasDownloaded(user string, source models.Source, track models.Track) (bool, error) {
	unlock := s.lockUser(user)
	defer unlock()

	h, err := s.load(user)
	if err != nil {
		return false, err
	}
	entry, ok := h.Sources[source]
	if !ok {
		return false, nil
	}
	for _, d := range entry.Downloaded {
		past := models.Track{Artist: d.Artist, Title: d.Title, Album: d.Album}
		if past.Matches(track) {
			return true, nil
		}
	}
	return false, nil
}

// Advance commits a source's new fingerprint together with the tracks that
// were downloaded and tagged this run. Callers only invoke it after the
// source's batch has been fully handed to the scheduler; crashing before
// Advance leaves the old fingerprint in place so the batch is re-attempted.
func (s *Store) Advance(user string, source models.Source, fingerprint string, newlyDownloaded []models.Track) error {
	return s.update(user, func(h *userHistory) {
		entry, ok := h.Sources[source]
		if !ok {
			entry = &Entry{}
			h.Sources[source] = entry
		}
		entry.Fingerprint = fingerprint
		now := time.Now().UTC()
		for _, t := range newlyDownloaded {
			entry.Downloaded = append(entry.Downloaded, Downloaded{
				Artist: t.Artist,
				Title:  t.Title,
				Album:  t.Album,
				At:     now,
			})
		}
	})
}

// MarkDownloaded folds a single track into the downloaded set without moving
// the fingerprint. Used when a job completes out of band of a batch commit.
func (s *Store) MarkDownloaded(user string, source models.Source, track models.Track) error {
	return s.update(user, func(h *userHistory) {
		entry, ok := h.Sources[source]
		if !ok {
			entry = &Entry{}
			h.Sources[source] = entry
		}
		entry.Downloaded = append(entry.Downloaded, Downloaded{
			Artist: track.Artist,
			Title:  track.Title,
			Album:  track.Album,
			At:     time.Now().UTC(),
		})
	})
}

// update applies fn to the user's document while holding both the in-process
// lock and the file lock, so the whole read-modify-write is atomic even
// across overlapping cron invocations. Readers stay lock-free: save commits
// by rename, so a concurrent load always sees a complete document.
func (s *Store) update(user string, fn func(*userHistory)) error {
	unlock := s.lockUser(user)
	defer unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %s", err.Error())
	}
	lock := flock.New(s.path(user) + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock history for %s: %s", user, err.Error())
	}
	defer func() {
		_ = lock.Unlock()
	}()

	h, err := s.load(user)
	if err != nil {
		return err
	}
	fn(h)
	return s.save(h)
}

func (s *Store) lockUser(user string) func() {
	s.mu.Lock()
	m, ok := s.users[user]
	if !ok {
		m = &sync.Mutex{}
		s.users[user] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Store) path(user string) string {
	return filepath.Join(s.dir, user+".json")
}

func (s *Store) load(user string) (*userHistory, error) {
	h := &userHistory{User: user, Sources: make(map[models.Source]*Entry)}

	data, err := os.ReadFile(s.path(user))
	if errors.Is(err, fs.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %s", user, err.Error())
	}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("failed to parse history for %s: %s", user, err.Error())
	}
	if h.Sources == nil {
		h.Sources = make(map[models.Source]*Entry)
	}
	s.prune(h)
	return h, nil
}

// save writes the document to a temp file and renames it into place. Callers
// hold the locks via update.
func (s *Store) save(h *userHistory) error {
	s.prune(h)
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history for %s: %s", h.User, err.Error())
	}

	tmp, err := os.CreateTemp(s.dir, h.User+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %s", err.Error())
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %s", err.Error())
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp history file: %s", err.Error())
	}
	if err := os.Rename(tmp.Name(), s.path(h.User)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit history: %s", err.Error())
	}
	return nil
}

// prune drops downloaded entries older than the retention horizon.
func (s *Store) prune(h *userHistory) {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	for _, entry := range h.Sources {
		kept := entry.Downloaded[:0]
		for _, d := range entry.Downloaded {
			if d.At.After(cutoff) {
				kept = append(kept, d)
			}
		}
		entry.Downloaded = kept
	}
}
