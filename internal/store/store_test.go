package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"novawatch/pkg/models"
)

func testAlert(id int, ts time.Time) *models.Alert {
	return &models.Alert{
		ID:          fmt.Sprintf("id-%d", id),
		Source:      "SIM",
		Type:        "High Temp",
		Severity:    models.SeverityHigh,
		Timestamp:   ts,
		Labels:      map[string]string{},
		Description: fmt.Sprintf("alert %d", id),
	}
}

func TestSubmitRejectsRecentDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	s, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := testAlert(1, ts)

	accepted, err := s.Submit(a)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !accepted {
		t.Fatalf("first submit should be accepted")
	}

	// Same source/type/description in the same minute bucket.
	dup := testAlert(1, ts.Add(30*time.Second))
	dup.ID = "id-other"
	accepted, err = s.Submit(dup)
	if err != nil {
		t.Fatalf("submit duplicate: %v", err)
	}
	if accepted {
		t.Fatalf("duplicate should be rejected")
	}

	stats := s.Stats()
	if stats.Accepted != 1 || stats.Duplicates != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 retained alert, got %d", s.Len())
	}
}

func TestRetentionEvictsOldestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	s, err := Open(Config{Path: path, MaxAlerts: 5, DedupeDepth: 3}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		a := testAlert(i, base.Add(time.Duration(i)*time.Minute))
		a.Description = fmt.Sprintf("unique %d", i)
		if _, err := s.Submit(a); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	all := s.All()
	if len(all) != 5 {
		t.Fatalf("expected cap of 5, got %d", len(all))
	}
	if all[0].ID != "id-3" || all[4].ID != "id-7" {
		t.Fatalf("expected the 5 most recent alerts, got %s..%s", all[0].ID, all[4].ID)
	}
	if s.Stats().Evicted != 3 {
		t.Fatalf("expected 3 evictions, got %d", s.Stats().Evicted)
	}
}

func TestDedupeSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s1, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s1.Submit(testAlert(1, ts)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s2, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.Len() != 1 {
		t.Fatalf("expected 1 alert after reopen, got %d", s2.Len())
	}

	dup := testAlert(1, ts.Add(10*time.Second))
	accepted, err := s2.Submit(dup)
	if err != nil {
		t.Fatalf("submit after reopen: %v", err)
	}
	if accepted {
		t.Fatalf("duplicate should still be rejected after restart")
	}
}

func TestOpenToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	if err := os.WriteFile(path, []byte("not json at all"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("open corrupt: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("corrupt file should start empty, got %d", s.Len())
	}
}

type captureForwarder struct {
	batches [][]*models.Alert
	err     error
}

func (c *captureForwarder) ForwardAlerts(alerts []*models.Alert) error {
	c.batches = append(c.batches, alerts)
	return c.err
}

func TestForwardersReceiveOnlyAcceptedAlerts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	fw := &captureForwarder{}
	s, err := Open(Config{Path: path}, nil, fw)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := []*models.Alert{
		testAlert(1, ts),
		testAlert(1, ts), // duplicate of the first within the batch
		nil,
		testAlert(2, ts),
	}
	batch[3].Description = "different"

	n, err := s.SubmitBatch(batch)
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 accepted, got %d", n)
	}
	if len(fw.batches) != 1 || len(fw.batches[0]) != 2 {
		t.Fatalf("unexpected forwarded batches: %+v", fw.batches)
	}
}

func TestForwardFailureDoesNotFailSubmit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	fw := &captureForwarder{err: fmt.Errorf("endpoint down")}
	s, err := Open(Config{Path: path}, nil, fw)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	accepted, err := s.Submit(testAlert(1, time.Now().UTC()))
	if err != nil {
		t.Fatalf("submit with failing forwarder: %v", err)
	}
	if !accepted {
		t.Fatalf("alert should be accepted despite forward failure")
	}
	if s.Len() != 1 {
		t.Fatalf("alert should be persisted despite forward failure")
	}
}

func TestLoadAllToleratesMissingFile(t *testing.T) {
	if got := LoadAll(filepath.Join(t.TempDir(), "missing.json")); got != nil {
		t.Fatalf("expected nil for missing file, got %+v", got)
	}
}
