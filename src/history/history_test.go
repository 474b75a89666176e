package history

import (
	"fmt"
	"sync"
	"testing"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(cfg.HistoryConfig{StateDir: t.TempDir(), RetentionDays: 30})
}

func TestFingerprintOrderSensitive(t *testing.T) {
	t1 := models.Track{Artist: "A", Title: "One"}
	t2 := models.Track{Artist: "B", Title: "Two"}

	if Fingerprint([]models.Track{t1, t2}) == Fingerprint([]models.Track{t2, t1}) {
		t.Error("reordered track lists should fingerprint differently")
	}
	if Fingerprint([]models.Track{t1, t2}) != Fingerprint([]models.Track{t1, t2}) {
		t.Error("identical track lists should fingerprint equally")
	}
}

func TestChangedAndBypass(t *testing.T) {
	s := newTestStore(t)

	fp := Fingerprint([]models.Track{{Artist: "A", Title: "T"}})
	changed, err := s.Changed("alice", models.SourceListenBrainz, fp, false)
	if err != nil || !changed {
		t.Fatalf("first sight should count as changed, got %v, %v", changed, err)
	}

	if err := s.Advance("alice", models.SourceListenBrainz, fp, nil); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	changed, err = s.Changed("alice", models.SourceListenBrainz, fp, false)
	if err != nil || changed {
		t.Fatalf("unchanged fingerprint should not count as changed, got %v, %v", changed, err)
	}

	changed, err = s.Changed("alice", models.SourceListenBrainz, fp, true)
	if err != nil || !changed {
		t.Fatalf("bypass should force reprocessing, got %v, %v", changed, err)
	}
}

func TestAdvanceAndHasDownloaded(t *testing.T) {
	s := newTestStore(t)

	track := models.Track{Artist: "Boards of Canada", Title: "Roygbiv", Album: "Music Has the Right to Children"}
	if err := s.Advance("bob", models.SourceLastFM, "fp1", []models.Track{track}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	variant := models.Track{Artist: "boards of canada!", Title: "ROYGBIV"}
	has, err := s.HasDownloaded("bob", models.SourceLastFM, variant)
	if err != nil || !has {
		t.Fatalf("normalized variant should be in downloaded set, got %v, %v", has, err)
	}

	otherAlbum := models.Track{Artist: "Boards of Canada", Title: "Roygbiv", Album: "Geogaddi"}
	has, err = s.HasDownloaded("bob", models.SourceLastFM, otherAlbum)
	if err != nil || has {
		t.Fatalf("conflicting album should miss the downloaded set, got %v, %v", has, err)
	}

	// other source's history is independent
	has, err = s.HasDownloaded("bob", models.SourceListenBrainz, track)
	if err != nil || has {
		t.Fatalf("downloaded set must be scoped per source, got %v, %v", has, err)
	}
}

func TestHistorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(cfg.HistoryConfig{StateDir: dir, RetentionDays: 30})

	track := models.Track{Artist: "A", Title: "T"}
	if err := s.Advance("carol", models.SourceLLM, "fp9", []models.Track{track}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	reopened := NewStore(cfg.HistoryConfig{StateDir: dir, RetentionDays: 30})
	fp, err := reopened.GetFingerprint("carol", models.SourceLLM)
	if err != nil || fp != "fp9" {
		t.Fatalf("fingerprint not persisted, got %q, %v", fp, err)
	}
	has, err := reopened.HasDownloaded("carol", models.SourceLLM, track)
	if err != nil || !has {
		t.Fatalf("downloaded set not persisted, got %v, %v", has, err)
	}
}

func TestMarkDownloadedKeepsFingerprint(t *testing.T) {
	s := newTestStore(t)

	if err := s.Advance("dave", models.SourceLink, "fp1", nil); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := s.MarkDownloaded("dave", models.SourceLink, models.Track{Artist: "A", Title: "T"}); err != nil {
		t.Fatalf("MarkDownloaded: %v", err)
	}

	fp, err := s.GetFingerprint("dave", models.SourceLink)
	if err != nil || fp != "fp1" {
		t.Fatalf("MarkDownloaded must not move the fingerprint, got %q, %v", fp, err)
	}
}

func TestOverlappingStoresKeepAllWrites(t *testing.T) {
	// two stores over the same directory stand in for overlapping cron
	// invocations; each mutation must hold the file lock across its whole
	// read-modify-write or one side's entries get silently dropped
	dir := t.TempDir()
	a := NewStore(cfg.HistoryConfig{StateDir: dir, RetentionDays: 30})
	b := NewStore(cfg.HistoryConfig{StateDir: dir, RetentionDays: 30})

	const rounds = 10
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			track := models.Track{Artist: "A", Title: fmt.Sprintf("a%d", n)}
			if err := a.MarkDownloaded("erin", models.SourceListenBrainz, track); err != nil {
				t.Errorf("MarkDownloaded: %v", err)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			track := models.Track{Artist: "B", Title: fmt.Sprintf("b%d", n)}
			if err := b.MarkDownloaded("erin", models.SourceListenBrainz, track); err != nil {
				t.Errorf("MarkDownloaded: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < rounds; i++ {
		for _, track := range []models.Track{
			{Artist: "A", Title: fmt.Sprintf("a%d", i)},
			{Artist: "B", Title: fmt.Sprintf("b%d", i)},
		} {
			has, err := a.HasDownloaded("erin", models.SourceListenBrainz, track)
			if err != nil || !has {
				t.Fatalf("entry %s lost, got %v, %v", track, has, err)
			}
		}
	}
}
